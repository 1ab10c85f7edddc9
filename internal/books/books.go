package books

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Book is one catalog entry. ID is the canonical English name used in
// verse keys; Names maps BCP 47 language codes to display names.
type Book struct {
	ID       string            `yaml:"id"`
	Chapters int               `yaml:"chapters"`
	Names    map[string]string `yaml:"names"`
}

// Catalog is the loaded book catalog. It is immutable after Load.
type Catalog struct {
	books   []Book
	byID    map[string]int
	byName  map[string]string
	locales []language.Tag
	matcher language.Matcher
}

type catalogFile struct {
	Books []Book `yaml:"books"`
}

// Load parses the embedded catalog. It fails only if the embedded data
// is malformed, which is a build defect rather than a runtime condition.
func Load() (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(catalogYAML))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing book catalog: %w", err)
	}

	c := &Catalog{
		books:  file.Books,
		byID:   make(map[string]int, len(file.Books)),
		byName: make(map[string]string),
	}
	localeSet := make(map[string]struct{})
	for i, b := range file.Books {
		if b.ID == "" {
			return nil, fmt.Errorf("book catalog: entry %d has no id", i)
		}
		if b.Chapters < 1 {
			return nil, fmt.Errorf("book catalog: %s has invalid chapter count %d", b.ID, b.Chapters)
		}
		if _, dup := c.byID[b.ID]; dup {
			return nil, fmt.Errorf("book catalog: duplicate id %s", b.ID)
		}
		c.byID[b.ID] = i
		for code, name := range b.Names {
			c.byName[strings.ToLower(name)] = b.ID
			localeSet[code] = struct{}{}
		}
	}

	codes := make([]string, 0, len(localeSet))
	for code := range localeSet {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	// English first so it wins as the fallback for unsupported locales.
	sort.SliceStable(codes, func(i, j int) bool { return codes[i] == "en" && codes[j] != "en" })
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("book catalog: bad language code %q: %w", code, err)
		}
		c.locales = append(c.locales, tag)
	}
	c.matcher = language.NewMatcher(c.locales)
	return c, nil
}

// All returns the books in canonical order.
func (c *Catalog) All() []Book {
	out := make([]Book, len(c.books))
	copy(out, c.books)
	return out
}

// ChapterCount returns the number of chapters in a book.
func (c *Catalog) ChapterCount(id string) (int, bool) {
	i, ok := c.byID[id]
	if !ok {
		return 0, false
	}
	return c.books[i].Chapters, true
}

// OrderIndex returns the zero-based canonical position of a book.
func (c *Catalog) OrderIndex(id string) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// Name returns the display name of a book for a locale, negotiated with
// BCP 47 matching. Unknown locales fall back to English; an unknown book
// id returns the id itself.
func (c *Catalog) Name(id, locale string) string {
	i, ok := c.byID[id]
	if !ok {
		return id
	}
	desired, err := language.Parse(locale)
	if err != nil {
		desired = language.English
	}
	_, idx, _ := c.matcher.Match(desired)
	code := c.locales[idx].String()
	if name, ok := c.books[i].Names[code]; ok {
		return name
	}
	if name, ok := c.books[i].Names["en"]; ok {
		return name
	}
	return id
}

// Resolve maps a display name in any supported locale back to the
// canonical book id. Matching is case-insensitive; a canonical id passes
// through unchanged.
func (c *Catalog) Resolve(name string) (string, bool) {
	if _, ok := c.byID[name]; ok {
		return name, true
	}
	id, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}
