package ref

import "strings"

// Translation is a lowercase translation tag ("kjv", "rst", ...).
type Translation string

// Known translation tags.
const (
	KJV Translation = "kjv"
	ASV Translation = "asv"
	WEB Translation = "web"
	RST Translation = "rst"
)

// ServerBase is the numbering scheme the backend stores rows in.
// Remote note rows always address verses in this scheme, regardless of
// which translation the reader is displaying.
const ServerBase = KJV

// secondary maps display translations onto the numbering scheme they
// share. Translations absent from this map are their own scheme root.
var secondary = map[Translation]Translation{
	ASV: KJV,
	WEB: KJV,
}

// Canonical normalizes a translation tag to its numbering-scheme root.
// Secondary translations that share the default verse numbering (asv, web)
// collapse to kjv; everything else passes through lowercased and trimmed.
//
// Cluster lookups index by numbering scheme, not by display translation,
// so every lookup must canonicalize first.
func Canonical(tag string) Translation {
	t := Translation(strings.ToLower(strings.TrimSpace(tag)))
	if root, ok := secondary[t]; ok {
		return root
	}
	return t
}

// Other returns the opposite numbering-scheme partner for a canonical
// translation. Exactly two schemes are supported: the default group (kjv)
// and the alternate group (rst). This is a fixed two-way pairing, not a
// general N-way graph.
func (t Translation) Other() Translation {
	if Canonical(string(t)) == RST {
		return KJV
	}
	return RST
}
