// Package notes talks to the annotation backend and keeps an offline
// replica of it. The client wraps the backend's JSON API; the store
// holds a SQLite read cache plus a durable outbox of writes made while
// offline; the service ties them together so callers get one API that
// works the same with or without a network.
//
// Writes performed offline receive a provisional "pending-" id. When the
// outbox drains, the backend assigns real ids and the service reports
// the old-to-new mapping so in-memory indexes can be rewritten.
package notes
