// Package search scans the text lines of a user's notes for a query string.
package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
)

// Match is one text line that matched the query.
type Match struct {
	LineID int    `json:"line_id"`
	Text   string `json:"text"`
}

// Notes scans every given note of the user and returns the matching text
// lines keyed by note id. Matching is case-insensitive substring; when the
// query also compiles as a regular expression, regexp matches count too.
// Notes with no matches are omitted; a query matching nothing yields an
// empty map, not an error.
func Notes(ctx context.Context, s store.Store, user string, noteIDs []string, query string) (map[string][]Match, error) {
	needle := strings.ToLower(query)

	// A query like "морн(инг" is still a valid substring search, so a
	// failed compile just disables the regexp path.
	re, reErr := regexp.Compile("(?i)" + query)
	if reErr != nil {
		re = nil
	}

	results := map[string][]Match{}
	for _, noteID := range noteIDs {
		ns := store.NewNoteNamespace(user, noteID)
		lines, err := s.ListLines(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note %s: %w", noteID, err)
		}

		var matches []Match
		for _, line := range lines {
			if line.Type != models.LineTypeText || line.Text == "" {
				continue
			}
			if strings.Contains(strings.ToLower(line.Text), needle) ||
				(re != nil && re.MatchString(line.Text)) {
				matches = append(matches, Match{LineID: line.LineID, Text: line.Text})
			}
		}
		if len(matches) > 0 {
			results[noteID] = matches
		}
	}
	return results, nil
}

// TotalMatches sums the match counts of a Notes result.
func TotalMatches(results map[string][]Match) int {
	total := 0
	for _, matches := range results {
		total += len(matches)
	}
	return total
}
