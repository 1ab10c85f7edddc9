// Package versemap implements cross-translation verse correspondence.
//
// Bible translations built on different source texts number verses
// differently: the Russian Synodal psalter shifts whole chapters and folds
// superscription titles into verse numbering, so "the same" verse carries
// different coordinates in each scheme. The Matcher answers, for a verse in
// one numbering scheme, which verse(s) correspond to it in the other, and
// which canonical cluster the verse belongs to.
//
// Correspondence data is declarative: rule tables are CUE files compiled
// into RuleSet values. The default kjv/rst table ships embedded; operators
// can vet replacement tables with the CLI before deploying them.
//
// The mapping data is reference-data-dependent, not derivable: boundary
// behavior is pinned by golden tests against the shipped table rather than
// computed from first principles.
package versemap
