// Package syncer moves annotation state between the backend and the
// in-memory session store.
//
// Hydration is windowed: the chapter being read plus one chapter either
// side. Each hydration fetches backend rows first, then applies them
// last-write-wins and commits the new window, evicting shared entries
// that fell out of it. A generation counter guards against slow
// hydrations landing after the user has switched translation or account:
// the fetch races nothing, but its results are discarded if the
// generation moved while it was in flight.
//
// Local edits apply to the in-memory store synchronously and then write
// through to the backend fail-soft: a backend failure is logged and the
// write queues in the outbox, it never surfaces to the reader.
package syncer
