package catalog

import (
	"sort"
	"strings"

	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// Suggestion is a known video name close to what the user typed.
type Suggestion struct {
	Name     string  `json:"name"`
	Distance int     `json:"distance"`
	Score    float64 `json:"score"`
}

// Resolution is the outcome of resolving one user entry.
type Resolution struct {
	Input string `json:"input"`
	// Name is set when the entry matched a video exactly after normalization.
	Name        string       `json:"name,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Resolved reports whether the entry names a known video.
func (r Resolution) Resolved() bool {
	return r.Name != ""
}

// Resolve matches input against the catalog. Exact matches win; otherwise
// the closest names within the edit-distance limit are suggested.
func (c *Catalog) Resolve(input string) Resolution {
	res := Resolution{Input: input}
	name := models.NormalizeVideoName(input)
	if name == "" {
		return res
	}
	if _, ok := c.Status(name); ok {
		res.Name = name
		return res
	}

	cands, err := c.candidates(name)
	if err != nil {
		c.logger.Warn("Video lookup failed", zap.String("input", input), zap.Error(err))
	}
	seen := make(map[string]bool, len(cands))
	var suggestions []Suggestion
	consider := func(cand string) {
		if seen[cand] {
			return
		}
		seen[cand] = true
		d := DamerauLevenshteinDistance(name, cand)
		prefix := strings.HasPrefix(cand, name)
		if d > c.maxDistance && !prefix {
			return
		}
		score := 1.0 / float64(d+1)
		if prefix {
			score += 0.5
		}
		suggestions = append(suggestions, Suggestion{Name: cand, Distance: d, Score: score})
	}
	for _, cand := range cands {
		consider(cand)
	}
	// Whole-name typos can miss every per-word fuzzy query; the catalog is small.
	for _, cand := range c.Names("") {
		consider(cand)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Name < suggestions[j].Name
	})
	if len(suggestions) > c.maxSuggestions {
		suggestions = suggestions[:c.maxSuggestions]
	}
	res.Suggestions = suggestions
	return res
}

// ResolveAll resolves each entry. It returns the exact names found (in input
// order, without duplicates) and the entries that did not resolve.
func (c *Catalog) ResolveAll(inputs []string) ([]string, []Resolution) {
	var names []string
	var misses []Resolution
	seen := map[string]bool{}
	for _, in := range inputs {
		r := c.Resolve(in)
		if !r.Resolved() {
			misses = append(misses, r)
			continue
		}
		if !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	}
	return names, misses
}
