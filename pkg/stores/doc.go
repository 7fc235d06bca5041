// Package stores provides the persistence layer: metadata items written by
// the async ingestion path and read by the sync lookup path, quarantine
// records for poison events, and orchestrator run history. Backends are
// capability interfaces with SQLite and in-memory implementations.
package stores
