package sequence

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
)

// Interval is a 1-based inclusive span on the forward strand.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MatchResult holds the hits of one query against one region.
type MatchResult struct {
	ForwardMatches []Interval `json:"forward_matches"`
	ReverseMatches []Interval `json:"reverse_matches"`
}

// Total returns the number of hits on both strands.
func (m MatchResult) Total() int {
	return len(m.ForwardMatches) + len(m.ReverseMatches)
}

// FindMatches reports every occurrence of query in region, overlapping ones
// included, and every occurrence of its reverse complement. Comparison is
// case-insensitive. Both slices are non-nil.
func FindMatches(query, region string) (MatchResult, error) {
	if query == "" {
		return MatchResult{}, fmt.Errorf("%w: query is empty", apperrors.ErrInvalidQuery)
	}
	q := upperASCII(query)
	r := upperASCII(region)
	rc := upperASCII(ReverseComplement(query))

	return MatchResult{
		ForwardMatches: scan(q, r),
		ReverseMatches: scan(rc, r),
	}, nil
}

func scan(needle, haystack string) []Interval {
	hits := make([]Interval, 0)
	for off := 0; off+len(needle) <= len(haystack); {
		i := strings.Index(haystack[off:], needle)
		if i < 0 {
			break
		}
		pos := off + i
		hits = append(hits, Interval{Start: pos + 1, End: pos + len(needle)})
		off = pos + 1
	}
	return hits
}

// upperASCII uppercases a-z only so byte offsets stay aligned with the input.
func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
