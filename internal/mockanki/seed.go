package mockanki

import "fmt"

// Seed helpers used by tests to stage collections in specific states.

// seedCard creates a note plus card directly, bypassing duplicate checks,
// and returns the card so the caller can tweak scheduling attributes.
func (s *State) seedCard(deck, frontPrefix string, tags []string) *Card {
	s.createDeckLocked(deck)

	noteID := s.nextNoteID
	s.nextNoteID++
	front := fmt.Sprintf("%s Q %d", frontPrefix, noteID)
	back := fmt.Sprintf("%s A %d", frontPrefix, noteID)

	note := &Note{
		ID:     noteID,
		Deck:   deck,
		Model:  "Basic",
		Fields: map[string]string{"Front": front, "Back": back},
		Tags:   append([]string(nil), tags...),
	}
	s.notes[noteID] = note
	s.noteOrder = append(s.noteOrder, noteID)
	for _, t := range tags {
		s.tags[t] = struct{}{}
	}

	cardID := s.nextCardID
	s.nextCardID++
	card := &Card{
		ID:       cardID,
		NoteID:   noteID,
		Deck:     deck,
		Question: front,
		Answer:   back,
		Factor:   DefaultFactor,
		Queue:    QueueNew,
	}
	s.cards[cardID] = card
	s.cardOrder = append(s.cardOrder, cardID)
	return card
}

// AddProblemCard seeds a review-queue card with optionally degraded ease or
// accumulated lapses, returning its id.
func (s *State) AddProblemCard(deck string, lowEase, highLapses bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.seedCard(deck, "Problem", []string{"problem-card"})
	card.Interval = 10
	card.Queue = QueueReview
	if lowEase {
		card.Factor = 1500
	}
	if highLapses {
		card.Lapses = 5
	}
	return card.ID
}

// AddDueCard seeds a review-queue card that is due now.
func (s *State) AddDueCard(deck string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.seedCard(deck, "Due", []string{"due-card"})
	card.Interval = 10
	card.Queue = QueueReview
	card.Due = 0
	return card.ID
}

// AddSuspendedCard seeds a suspended card.
func (s *State) AddSuspendedCard(deck string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.seedCard(deck, "Suspended", []string{"suspended-card"})
	card.Suspended = true
	return card.ID
}
