package router

import (
	"testing"
)

func TestDecode_SyncRequest(t *testing.T) {
	event, err := Decode([]byte(`{"httpMethod":"GET","path":"/images/foo.png"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if event.Kind != KindSyncRequest {
		t.Fatalf("Kind = %s, want %s", event.Kind, KindSyncRequest)
	}
	if event.Sync == nil || event.Sync.Method != "GET" || event.Sync.Path != "/images/foo.png" {
		t.Errorf("Sync = %+v", event.Sync)
	}
	if event.Async != nil {
		t.Error("Expected Async to be nil for sync request")
	}
}

func TestDecode_AsyncNotification(t *testing.T) {
	raw := []byte(`{
		"records": [
			{"source": "storage:objects", "bucket": "images", "key": "foo.png", "size": 1024}
		],
		"deliveryAttempt": 2
	}`)

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if event.Kind != KindAsyncNotification {
		t.Fatalf("Kind = %s, want %s", event.Kind, KindAsyncNotification)
	}
	if len(event.Async.Records) != 1 || event.Async.Records[0].Key != "foo.png" {
		t.Errorf("Records = %+v", event.Async.Records)
	}
	if event.Async.DeliveryAttempt != 2 {
		t.Errorf("DeliveryAttempt = %d, want 2", event.Async.DeliveryAttempt)
	}
}

func TestDecode_SyncWinsOverRecords(t *testing.T) {
	// An event carrying both shapes resolves to a sync request. The rules
	// run in fixed order and the HTTP check comes first.
	raw := []byte(`{
		"httpMethod": "GET",
		"path": "/images/foo.png",
		"records": [{"source": "storage:objects", "key": "foo.png"}]
	}`)

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if event.Kind != KindSyncRequest {
		t.Errorf("Kind = %s, want %s", event.Kind, KindSyncRequest)
	}
}

func TestDecode_Unknown(t *testing.T) {
	cases := map[string]string{
		"empty object":          `{}`,
		"method without path":   `{"httpMethod":"GET"}`,
		"path without method":   `{"path":"/images/foo.png"}`,
		"empty records":         `{"records":[]}`,
		"non-storage source":    `{"records":[{"source":"queue:tasks","key":"foo"}]}`,
		"missing record source": `{"records":[{"key":"foo.png"}]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			event, err := Decode([]byte(raw))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if event.Kind != KindUnknown {
				t.Errorf("Kind = %s, want %s", event.Kind, KindUnknown)
			}
		})
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("Expected error for malformed payload, got nil")
	}
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got: %v", err)
	}
}

func TestDecode_DeliveryAttemptFloor(t *testing.T) {
	raw := []byte(`{"records":[{"source":"storage:objects","key":"a"}]}`)

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if event.Async.DeliveryAttempt != 1 {
		t.Errorf("DeliveryAttempt = %d, want floor of 1", event.Async.DeliveryAttempt)
	}
}
