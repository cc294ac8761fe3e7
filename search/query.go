// Package search turns raw /find commands typed in chat into structured
// queries for the message index.
package search

import (
	"strconv"
	"strings"
)

const defaultLimit = 10

// Query holds the structured parameters of a message search. It decouples
// the raw chat input from the index engine.
type Query struct {
	RawInput    string // the original command line
	Terms       string // free text to match against message bodies
	CommunityID string // restrict to one community, empty means all
	Author      string // restrict to one author id
	Lang        string // restrict to a detected language code, e.g. "fr"
	Limit       int    // maximum number of results
}

// Parse extracts command-line style arguments from a chat command.
// Example: /find "midterm deadline" --community cs-101 --author u-7 --limit 20
func Parse(input string) *Query {
	q := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var terms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]
			switch key {
			case "community":
				q.CommunityID = val
			case "author":
				q.Author = val
			case "lang":
				q.Lang = strings.ToLower(val)
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					q.Limit = n
				}
			}
			i++
			continue
		}

		// Everything that is neither a flag nor the command itself is a term.
		if !strings.HasPrefix(part, "/") {
			terms = append(terms, strings.Trim(part, `"`))
		}
	}

	q.Terms = strings.Join(terms, " ")
	return q
}
