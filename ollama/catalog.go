package ollama

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// CatalogEntry describes a small model suitable for on-device coaching.
type CatalogEntry struct {
	Name        string
	DisplayName string
	SizeMB      int
}

// Catalog is the fixed list of supported local models. The first entry is
// the default.
var Catalog = []CatalogEntry{
	{Name: "llama3.2:1b", DisplayName: "Llama 3.2 1B", SizeMB: 1300},
	{Name: "qwen2.5:0.5b", DisplayName: "Qwen 2.5 0.5B", SizeMB: 400},
	{Name: "gemma3:1b", DisplayName: "Gemma 3 1B", SizeMB: 815},
}

// DefaultModel returns the catalog's default entry.
func DefaultModel() CatalogEntry {
	return Catalog[0]
}

type catalogSource []CatalogEntry

func (s catalogSource) String(i int) string { return s[i].Name }
func (s catalogSource) Len() int            { return len(s) }

// LookupModel resolves name against the catalog. An empty name yields the
// default; otherwise an exact match wins and the best fuzzy match is used
// as a fallback ("qwen" → "qwen2.5:0.5b").
func LookupModel(name string) (CatalogEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel(), nil
	}

	for _, entry := range Catalog {
		if strings.EqualFold(entry.Name, name) {
			return entry, nil
		}
	}

	matches := fuzzy.FindFrom(name, catalogSource(Catalog))
	if len(matches) == 0 {
		return CatalogEntry{}, fmt.Errorf("model %q is not in the local catalog", name)
	}
	return Catalog[matches[0].Index], nil
}
