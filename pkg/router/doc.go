// Package router implements the dual-mode event handler. A single entry
// point classifies one inbound event as a synchronous request, an
// asynchronous storage notification, or unknown, and dispatches it to
// exactly one handling path. The sync path always recovers into a
// well-formed response; the async path never swallows failures, so the
// surrounding at-least-once delivery subsystem can redeliver and
// eventually quarantine poison events.
package router
