package mockanki

import (
	"strconv"
	"strings"
)

// predicateKind enumerates the search predicates the mock understands. The
// real Anki grammar is far richer; this subset is what the tests exercise.
type predicateKind int

const (
	predDeck predicateKind = iota
	predTag
	predEaseBelow
	predLapsesAtLeast
	predSuspended
	predBuried
	predDue
)

// predicate is one parsed query token: a kind plus its operand.
type predicate struct {
	kind      predicateKind
	text      string  // deck name or tag
	threshold float64 // ease bound, in ease units (factor / 1000)
	count     int     // lapses bound
}

// parseQuery turns a query string into typed predicates. Tokens that don't
// parse as a known predicate are dropped, which makes unrecognized syntax
// match everything rather than nothing.
func parseQuery(query string) []predicate {
	var preds []predicate
	for _, token := range splitQuery(query) {
		lower := strings.ToLower(token)
		switch {
		case strings.HasPrefix(lower, "deck:"):
			name := strings.Trim(token[len("deck:"):], `"`)
			if name != "" {
				preds = append(preds, predicate{kind: predDeck, text: name})
			}
		case strings.HasPrefix(lower, "tag:"):
			tag := token[len("tag:"):]
			if tag != "" {
				preds = append(preds, predicate{kind: predTag, text: tag})
			}
		case strings.HasPrefix(lower, "prop:ease<"):
			if v, err := strconv.ParseFloat(lower[len("prop:ease<"):], 64); err == nil {
				preds = append(preds, predicate{kind: predEaseBelow, threshold: v})
			}
		case strings.HasPrefix(lower, "prop:lapses>="):
			if v, err := strconv.Atoi(lower[len("prop:lapses>="):]); err == nil {
				preds = append(preds, predicate{kind: predLapsesAtLeast, count: v})
			}
		case lower == "is:suspended":
			preds = append(preds, predicate{kind: predSuspended})
		case lower == "is:buried":
			preds = append(preds, predicate{kind: predBuried})
		case lower == "is:due":
			preds = append(preds, predicate{kind: predDue})
		}
	}
	return preds
}

// splitQuery splits on spaces while keeping double-quoted spans intact, so
// deck:"Spanish Vocabulary" stays a single token.
func splitQuery(query string) []string {
	var tokens []string
	var b strings.Builder
	inQuotes := false
	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == ' ' && !inQuotes:
			if b.Len() > 0 {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// cardMatchesLocked evaluates all predicates against a card. Tag predicates
// look through to the owning note. Conjunctive: every predicate must hold.
func (s *State) cardMatchesLocked(card *Card, preds []predicate) bool {
	for _, p := range preds {
		switch p.kind {
		case predDeck:
			if !strings.EqualFold(card.Deck, p.text) {
				return false
			}
		case predTag:
			note := s.notes[card.NoteID]
			if note == nil || !hasTagFold(note.Tags, p.text) {
				return false
			}
		case predEaseBelow:
			if float64(card.Factor)/1000 >= p.threshold {
				return false
			}
		case predLapsesAtLeast:
			if card.Lapses < p.count {
				return false
			}
		case predSuspended:
			if !card.Suspended {
				return false
			}
		case predBuried:
			if !card.Buried {
				return false
			}
		case predDue:
			if card.Queue != QueueReview || card.Due > 0 {
				return false
			}
		}
	}
	return true
}

// noteMatchesLocked evaluates predicates against a note. Card-level
// predicates (prop:, is:) don't apply to notes and pass through.
func noteMatchesLocked(note *Note, preds []predicate) bool {
	for _, p := range preds {
		switch p.kind {
		case predDeck:
			if !strings.EqualFold(note.Deck, p.text) {
				return false
			}
		case predTag:
			if !hasTagFold(note.Tags, p.text) {
				return false
			}
		}
	}
	return true
}

func hasTagFold(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

// FindNotes returns, in insertion order, the ids of notes matching the query.
func (s *State) FindNotes(query string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	preds := parseQuery(query)
	results := []int64{}
	for _, id := range s.noteOrder {
		if noteMatchesLocked(s.notes[id], preds) {
			results = append(results, id)
		}
	}
	return results
}

// FindCards returns, in insertion order, the ids of cards matching the query.
func (s *State) FindCards(query string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	preds := parseQuery(query)
	results := []int64{}
	for _, id := range s.cardOrder {
		if s.cardMatchesLocked(s.cards[id], preds) {
			results = append(results, id)
		}
	}
	return results
}
