// Package search ranks definition artifacts against a query using a
// weighted sum over independent field matches. Scoring is pure: two calls
// with the same query against the same registry snapshot return identical
// ordered results, including tie-break order.
package search

import (
	"sort"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// Matched field names reported on a result.
const (
	FieldIdentifier  = "identifier"
	FieldDescription = "description"
	FieldKind        = "kind"
	FieldSkills      = "skills"
	FieldTools       = "tools"
)

// Weights holds the score contribution of each field match.
type Weights struct {
	IdentifierExact     int
	IdentifierSubstring int
	Description         int
	KindFilter          int
	Membership          int
}

// DefaultWeights returns the built-in scoring weights.
func DefaultWeights() Weights {
	return Weights{
		IdentifierExact:     100,
		IdentifierSubstring: 50,
		Description:         30,
		KindFilter:          20,
		Membership:          10,
	}
}

// Filters are hard constraints applied before scoring.
type Filters struct {
	Kind     artifact.Kind
	Location artifact.Location
}

// Result is one scored artifact.
type Result struct {
	Artifact      *artifact.Artifact
	Score         int
	MatchedFields []string
}

// Engine scores artifacts against queries.
type Engine struct {
	weights Weights
}

// NewEngine creates a search engine. Zero-valued weights select the
// defaults.
func NewEngine(weights Weights) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Engine{weights: weights}
}

// Search ranks the snapshot's artifacts against the query. Filters are
// applied before scoring and results are truncated to limit after sorting;
// a non-positive limit returns everything. Unparseable artifacts never
// match: they are undiscoverable until repaired.
func (e *Engine) Search(query string, snap *registry.Snapshot, filters Filters, limit int) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var results []Result
	for _, art := range snap.Artifacts() {
		if !art.Parseable() {
			continue
		}
		if filters.Kind != "" && art.Kind != filters.Kind {
			continue
		}
		if filters.Location != "" && art.Location != filters.Location {
			continue
		}

		if r, ok := e.score(query, art, filters); ok {
			results = append(results, r)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Artifact.Identifier < results[j].Artifact.Identifier
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// score evaluates the weighted field matches for one artifact.
func (e *Engine) score(query string, art *artifact.Artifact, filters Filters) (Result, bool) {
	r := Result{Artifact: art}

	identifier := strings.ToLower(art.Identifier)
	switch {
	case identifier == query:
		r.Score += e.weights.IdentifierExact
		r.MatchedFields = append(r.MatchedFields, FieldIdentifier)
	case strings.Contains(identifier, query):
		r.Score += e.weights.IdentifierSubstring
		r.MatchedFields = append(r.MatchedFields, FieldIdentifier)
	}

	if strings.Contains(strings.ToLower(art.Header.Description), query) {
		r.Score += e.weights.Description
		r.MatchedFields = append(r.MatchedFields, FieldDescription)
	}

	if filters.Kind != "" && art.Kind == filters.Kind {
		r.Score += e.weights.KindFilter
		r.MatchedFields = append(r.MatchedFields, FieldKind)
	}

	if membershipMatch(art.Header.Skills, query) {
		r.Score += e.weights.Membership
		r.MatchedFields = append(r.MatchedFields, FieldSkills)
	}
	if membershipMatch(art.Header.Tools, query) {
		r.Score += e.weights.Membership
		r.MatchedFields = append(r.MatchedFields, FieldTools)
	}

	if r.Score == 0 {
		return Result{}, false
	}
	return r, true
}

func membershipMatch(entries []string, query string) bool {
	for _, entry := range entries {
		if strings.ToLower(entry) == query {
			return true
		}
	}
	return false
}
