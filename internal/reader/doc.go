// Package reader exposes the annotation engine to a reading surface.
// A Session is the single entry point: it owns the in-memory state, the
// sync coordinator, the rule-table load, and the connectivity
// subscription, and funnels every mutation through one call path.
package reader
