// Package annotations holds the in-memory annotation state for a reader
// session and the reconciliation logic that resolves a verse's effective
// highlight and note across translations.
//
// State lives in two tiers. Shared maps are keyed by cluster id and are
// the cross-translation truth. Per-translation maps are keyed by verse key
// and hold values for verses with no known cross-translation counterpart:
// either genuinely unmapped verses or values recorded before the verse
// matcher finished loading. Whenever a counterpart becomes known, the
// per-translation entry is promoted (moved, not copied) into the shared
// tier.
//
// All mutation goes through Store methods; the maps themselves are never
// exposed. The store is internally locked, but the design intent is a
// single writer: the reader session funnels every mutation through one
// call path.
package annotations
