package ref

import "fmt"

// HighlightColor is a user highlight color. ColorNone is the sentinel for
// "no highlight" and is the zero value.
type HighlightColor int

// Highlight colors, in the order the reader palette shows them.
const (
	ColorNone HighlightColor = iota
	ColorYellow
	ColorGreen
	ColorBlue
	ColorPink
	ColorOrange
)

var colorNames = map[HighlightColor]string{
	ColorNone:   "",
	ColorYellow: "yellow",
	ColorGreen:  "green",
	ColorBlue:   "blue",
	ColorPink:   "pink",
	ColorOrange: "orange",
}

var colorValues = map[string]HighlightColor{
	"":       ColorNone,
	"yellow": ColorYellow,
	"green":  ColorGreen,
	"blue":   ColorBlue,
	"pink":   ColorPink,
	"orange": ColorOrange,
}

// String returns the wire name of the color. ColorNone renders as the
// empty string, matching the backend's null/empty color column.
func (c HighlightColor) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("HighlightColor(%d)", int(c))
}

// ParseColor maps a wire color name to a HighlightColor. The empty string
// parses to ColorNone; unknown names are an error so that bad backend data
// is caught at the hydration boundary rather than rendered.
func ParseColor(name string) (HighlightColor, error) {
	if c, ok := colorValues[name]; ok {
		return c, nil
	}
	return ColorNone, fmt.Errorf("unknown highlight color %q", name)
}
