// Package ref defines the value types shared by every concord component:
// verse keys, translation tags, highlight colors, and cluster ids.
//
// Two verse numbering schemes exist in this design: the default scheme
// (kjv, with asv and web sharing its numbering) and the alternate scheme
// (rst). A ClusterID names the cross-translation group a verse belongs to,
// expressed in the server's base numbering (kjv).
//
// All types here are immutable value types with equality by value.
package ref
