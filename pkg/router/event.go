package router

import (
	"encoding/json"
	"strings"
	"time"
)

// EventKind discriminates the three event variants.
type EventKind string

const (
	// KindSyncRequest is a caller-blocking request/response call.
	KindSyncRequest EventKind = "sync_request"

	// KindAsyncNotification is a fire-and-forget storage notification batch.
	KindAsyncNotification EventKind = "async_notification"

	// KindUnknown is an event that matched no known source.
	KindUnknown EventKind = "unknown"
)

// StorageSourcePrefix identifies records originating from a storage
// notification. Only batches whose first record carries this prefix are
// classified as async notifications.
const StorageSourcePrefix = "storage:"

// SyncRequest is an HTTP-style request event.
type SyncRequest struct {
	// Method is the HTTP method.
	Method string `json:"httpMethod"`

	// Path is the request path, e.g. "/images/foo.png".
	Path string `json:"path"`
}

// Record is one entry in an async notification batch.
type Record struct {
	// Source declares the record's origin, e.g. "storage:objects".
	Source string `json:"source"`

	// Bucket is the storage container the object lives in.
	Bucket string `json:"bucket"`

	// Key is the object key. Keys arrive URL-encoded from the transport.
	Key string `json:"key"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// ContentType is the object's declared media type.
	ContentType string `json:"contentType"`

	// ModifiedAt is the object's last modification time.
	ModifiedAt time.Time `json:"modifiedAt"`
}

// AsyncNotification is a batch of storage notification records with the
// transport's delivery-attempt counter.
type AsyncNotification struct {
	// Records is the ordered record batch.
	Records []Record `json:"records"`

	// DeliveryAttempt is the transport-supplied delivery counter,
	// starting at 1.
	DeliveryAttempt int `json:"deliveryAttempt"`
}

// Event is the decoded discriminated union of the three variants. Exactly
// one of Sync and Async is non-nil unless Kind is unknown.
type Event struct {
	Kind  EventKind
	Sync  *SyncRequest
	Async *AsyncNotification
}

// envelope is the raw wire shape, decoded once at the boundary.
type envelope struct {
	Method          string   `json:"httpMethod"`
	Path            string   `json:"path"`
	Records         []Record `json:"records"`
	DeliveryAttempt int      `json:"deliveryAttempt"`
}

// Decode parses a raw event payload and classifies it. The rules run in
// fixed order, first match wins:
//
//  1. an explicit HTTP method and path -> sync request
//  2. a non-empty record batch whose first record declares a storage
//     notification source -> async notification
//  3. otherwise -> unknown
//
// An event carrying both an HTTP method and records therefore always
// resolves to a sync request.
func Decode(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, NewValidationError("malformed event payload", err)
	}
	return classify(&env), nil
}

// classify applies the classification rules to a decoded envelope.
func classify(env *envelope) *Event {
	if env.Method != "" && env.Path != "" {
		return &Event{
			Kind: KindSyncRequest,
			Sync: &SyncRequest{Method: env.Method, Path: env.Path},
		}
	}

	if len(env.Records) > 0 && strings.HasPrefix(env.Records[0].Source, StorageSourcePrefix) {
		attempt := env.DeliveryAttempt
		if attempt < 1 {
			attempt = 1
		}
		return &Event{
			Kind:  KindAsyncNotification,
			Async: &AsyncNotification{Records: env.Records, DeliveryAttempt: attempt},
		}
	}

	return &Event{Kind: KindUnknown}
}
