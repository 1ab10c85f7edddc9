// Package books carries the canonical book catalog: the 66 book ids
// used in verse keys, chapter counts, canonical ordering, and localized
// display names. The catalog ships embedded in the binary so lookups
// never touch disk or network.
package books
