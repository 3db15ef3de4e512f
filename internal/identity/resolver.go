// Package identity links jobs to canonical companies using the company slug
// embedded in a job URL. Matching is exact on normalized names; anything
// ambiguous or unextractable resolves to nil.
package identity

import (
	"strings"
	"unicode"

	"github.com/jonathan/job-insights/internal/types"
)

// slugMarker separates the job title from the company slug, as in
// ".../senior-data-engineer-at-acme-corp-12".
const slugMarker = "at-"

// ExtractCompanySlug returns the lowercased company slug of a job URL, or "" when the
// URL carries no marker. The marker must start a path segment or follow a '-'.
// When several markers are present the last one wins.
func ExtractCompanySlug(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	segments := strings.Split(url, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if slug := slugFromSegment(segments[i]); slug != "" {
			return slug
		}
	}
	return ""
}

func slugFromSegment(seg string) string {
	lower := strings.ToLower(seg)
	if i := strings.LastIndex(lower, "-"+slugMarker); i >= 0 {
		return lower[i+1+len(slugMarker):]
	}
	if strings.HasPrefix(lower, slugMarker) {
		return lower[len(slugMarker):]
	}
	return ""
}

// NormalizeCompanyKey turns a slug or a company name into a join key:
// separators become spaces, digits and other non-letters are dropped,
// whitespace is collapsed and the result is lowercased.
func NormalizeCompanyKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Index maps normalized company names to company IDs. It is built once per
// load and never mutated afterwards.
type Index struct {
	ids       map[string]int64
	ambiguous map[string]bool
}

// NewIndex builds an index from the canonical company directory. Names that
// normalize to the same key are marked ambiguous and never match.
func NewIndex(companies []types.Company) *Index {
	idx := &Index{
		ids:       make(map[string]int64, len(companies)),
		ambiguous: make(map[string]bool),
	}
	for _, c := range companies {
		key := NormalizeCompanyKey(c.Name)
		if key == "" {
			continue
		}
		if prev, ok := idx.ids[key]; ok && prev != c.ID {
			idx.ambiguous[key] = true
			continue
		}
		idx.ids[key] = c.ID
	}
	for key := range idx.ambiguous {
		delete(idx.ids, key)
	}
	return idx
}

// Lookup returns the company ID for a normalized key.
func (idx *Index) Lookup(key string) (int64, bool) {
	if idx == nil || key == "" {
		return 0, false
	}
	id, ok := idx.ids[key]
	return id, ok
}

// Len returns the number of unambiguous keys.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.ids)
}

// Ambiguous returns the keys shared by more than one company.
func (idx *Index) Ambiguous() []string {
	if idx == nil {
		return nil
	}
	out := make([]string, 0, len(idx.ambiguous))
	for k := range idx.ambiguous {
		out = append(out, k)
	}
	return out
}

// Resolver resolves job URLs against an Index.
type Resolver struct {
	index *Index
}

// NewResolver returns a resolver reading from idx.
func NewResolver(idx *Index) *Resolver {
	return &Resolver{index: idx}
}

// Resolve returns the company ID a job URL refers to, or nil.
func (r *Resolver) Resolve(url string) *int64 {
	key := NormalizeCompanyKey(ExtractCompanySlug(url))
	id, ok := r.index.Lookup(key)
	if !ok {
		return nil
	}
	return &id
}
