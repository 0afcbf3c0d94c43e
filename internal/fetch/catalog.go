package fetch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchCategory is the lookup category that always means "use web search".
const SearchCategory = "search"

// Catalog maps lookup categories to their sources.
type Catalog struct {
	Categories map[string][]Source `yaml:"categories"`
}

// DefaultCatalog is used when no sources file exists.
func DefaultCatalog() *Catalog {
	return &Catalog{Categories: map[string][]Source{
		"definition": {
			{Name: "dictionaryapi", URL: "https://api.dictionaryapi.dev/api/v2/entries/en/{query}", Priority: 1, Hint: "JSON dictionary entries; summarize the meanings"},
			{Name: "wiktionary", URL: "https://en.wiktionary.org/wiki/{query}", Priority: 2, Hint: "Wiktionary entry"},
		},
		"encyclopedia": {
			{Name: "wikipedia-summary", URL: "https://en.wikipedia.org/api/rest_v1/page/summary/{query}", Priority: 1, Hint: "Wikipedia summary JSON; the extract field is the article lead"},
			{Name: "wikipedia", URL: "https://en.wikipedia.org/wiki/{query}", Priority: 2, Hint: "Wikipedia article text"},
		},
		"go_package": {
			{Name: "pkg.go.dev", URL: "https://pkg.go.dev/{query}", Priority: 1, Hint: "Go package documentation"},
		},
		"npm_package": {
			{Name: "npm-registry", URL: "https://registry.npmjs.org/{query}/latest", Priority: 1, Hint: "npm package metadata JSON"},
			{Name: "npmjs", URL: "https://www.npmjs.com/package/{query}", Priority: 2, Hint: "npm package page"},
		},
		"python_package": {
			{Name: "pypi", URL: "https://pypi.org/pypi/{query}/json", Priority: 1, Hint: "PyPI package metadata JSON"},
		},
	}}
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if c.Categories == nil {
		c.Categories = map[string][]Source{}
	}
	for name, sources := range c.Categories {
		for i, src := range sources {
			if strings.TrimSpace(src.URL) == "" {
				return nil, fmt.Errorf("category %q source %d has no url", name, i+1)
			}
		}
	}
	return &c, nil
}

// LoadCatalog reads the catalog at path, falling back to DefaultCatalog when
// the file does not exist.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseCatalog(data)
}

// Sources returns the category's sources in priority order. Category names
// are case-insensitive.
func (c *Catalog) Sources(category string) []Source {
	if c == nil {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(category))
	for name, sources := range c.Categories {
		if strings.ToLower(name) == key {
			return SortSources(sources)
		}
	}
	return nil
}

// Names lists the configured categories, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
