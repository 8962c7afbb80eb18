// Package mockanki provides an in-memory stand-in for the AnkiConnect API.
// It models just enough of Anki's deck/note/card/review state and search
// syntax for deterministic testing without a running Anki instance.
package mockanki

import (
	"fmt"
	"strings"
	"sync"
)

// Card queue states as Anki encodes them. Negative values take a card out
// of the normal scheduling queues.
const (
	QueueNew       = 0
	QueueLearning  = 1
	QueueReview    = 2
	QueueSuspended = -1
	QueueBuried    = -2
)

// DefaultFactor is the ease factor assigned to new cards, in permille.
const DefaultFactor = 2500

// Note is the content record from which cards are generated.
type Note struct {
	ID     int64
	Deck   string
	Model  string
	Fields map[string]string
	Tags   []string
}

// Card is a schedulable unit derived from a note. Its deck can diverge from
// the owning note's deck after a changeDeck.
type Card struct {
	ID        int64
	NoteID    int64
	Deck      string
	Question  string
	Answer    string
	Factor    int // ease factor in permille
	Interval  int // days
	Lapses    int
	Queue     int
	Type      int
	Due       int
	Suspended bool
	Buried    bool
}

// Review is an append-only review event, shaped like an Anki revlog row.
type Review struct {
	ID           int64 `json:"id"`
	CardID       int64 `json:"-"`
	Ease         int   `json:"ease"`
	Interval     int   `json:"ivl"`
	LastInterval int   `json:"lastIvl"`
	Factor       int   `json:"factor"`
	TimeMs       int64 `json:"time"`
	Type         int   `json:"type"`
	USN          int   `json:"usn"`
}

// State holds the whole mock collection. Notes and cards are kept in maps
// keyed by id with parallel insertion-order slices so query results are
// deterministic.
type State struct {
	mu sync.Mutex

	decks     map[string]int64
	deckOrder []string

	models     map[string][]string
	modelOrder []string

	notes     map[int64]*Note
	noteOrder []int64

	cards     map[int64]*Card
	cardOrder []int64

	tags map[string]struct{}

	reviews []Review

	nextNoteID   int64
	nextCardID   int64
	nextDeckID   int64
	nextReviewID int64

	reviewsToday int
	reviewsByDay [][2]int
}

// NewState returns a collection seeded with the Default deck and the three
// stock note types.
func NewState() *State {
	s := &State{
		decks:        map[string]int64{"Default": 1},
		deckOrder:    []string{"Default"},
		models:       map[string][]string{},
		notes:        map[int64]*Note{},
		cards:        map[int64]*Card{},
		tags:         map[string]struct{}{},
		nextNoteID:   1000000000,
		nextCardID:   1000000000,
		nextDeckID:   100,
		nextReviewID: 1,
		reviewsToday: 5,
		reviewsByDay: [][2]int{{0, 10}, {1, 15}, {2, 8}, {3, 12}, {4, 20}, {5, 5}, {6, 18}},
	}
	for _, m := range []struct {
		name   string
		fields []string
	}{
		{"Basic", []string{"Front", "Back"}},
		{"Cloze", []string{"Text", "Extra"}},
		{"Basic (and reversed card)", []string{"Front", "Back"}},
	} {
		s.models[m.name] = m.fields
		s.modelOrder = append(s.modelOrder, m.name)
	}
	return s
}

// CreateDeck returns the existing deck id or allocates the next one.
// Creating a deck that already exists is not an error.
func (s *State) CreateDeck(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDeckLocked(name)
}

func (s *State) createDeckLocked(name string) int64 {
	if id, ok := s.decks[name]; ok {
		return id
	}
	id := s.nextDeckID
	s.nextDeckID++
	s.decks[name] = id
	s.deckOrder = append(s.deckOrder, name)
	return id
}

// DeckNames lists decks in creation order.
func (s *State) DeckNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deckOrder))
	copy(out, s.deckOrder)
	return out
}

// ModelNames lists note types in declaration order.
func (s *State) ModelNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.modelOrder))
	copy(out, s.modelOrder)
	return out
}

// ModelFieldNames returns the ordered field names of a note type. Unknown
// models are a hard error, matching AnkiConnect.
func (s *State) ModelFieldNames(model string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.models[model]
	if !ok {
		return nil, fmt.Errorf("model not found: %s", model)
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out, nil
}

// Tags returns the global tag vocabulary, the union across all notes.
func (s *State) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	return out
}

// firstFieldLocked resolves the note's first field value using the model's
// declared field order, which is what duplicate detection keys on. Unknown
// models fall back to the Front/Back layout, matching card rendering.
func (s *State) firstFieldLocked(model string, fields map[string]string) string {
	names, ok := s.models[model]
	if !ok {
		names = []string{"Front", "Back"}
	}
	if len(names) > 0 {
		return fields[names[0]]
	}
	return ""
}

// isDuplicateLocked reports whether a note with the same deck and first
// field value already exists.
func (s *State) isDuplicateLocked(deck, model string, fields map[string]string) bool {
	first := s.firstFieldLocked(model, fields)
	for _, id := range s.noteOrder {
		n := s.notes[id]
		if n.Deck == deck && s.firstFieldLocked(n.Model, n.Fields) == first {
			return true
		}
	}
	return false
}

// AddNote creates a note and exactly one card derived from the model's first
// two fields. It returns (0, false) for duplicates rather than an error, and
// lazily creates the target deck.
func (s *State) AddNote(deck, model string, fields map[string]string, tags []string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNoteLocked(deck, model, fields, tags)
}

func (s *State) addNoteLocked(deck, model string, fields map[string]string, tags []string) (int64, bool) {
	if s.isDuplicateLocked(deck, model, fields) {
		return 0, false
	}

	noteID := s.nextNoteID
	s.nextNoteID++

	fieldsCopy := make(map[string]string, len(fields))
	for k, v := range fields {
		fieldsCopy[k] = v
	}
	note := &Note{
		ID:     noteID,
		Deck:   deck,
		Model:  model,
		Fields: fieldsCopy,
		Tags:   append([]string(nil), tags...),
	}
	s.notes[noteID] = note
	s.noteOrder = append(s.noteOrder, noteID)

	for _, t := range tags {
		s.tags[t] = struct{}{}
	}

	cardID := s.nextCardID
	s.nextCardID++

	fieldNames, ok := s.models[model]
	if !ok {
		fieldNames = []string{"Front", "Back"}
	}
	var question, answer string
	if len(fieldNames) > 0 {
		question = fieldsCopy[fieldNames[0]]
	}
	if len(fieldNames) > 1 {
		answer = fieldsCopy[fieldNames[1]]
	}

	card := &Card{
		ID:       cardID,
		NoteID:   noteID,
		Deck:     deck,
		Question: question,
		Answer:   answer,
		Factor:   DefaultFactor,
		Queue:    QueueNew,
	}
	s.cards[cardID] = card
	s.cardOrder = append(s.cardOrder, cardID)

	s.createDeckLocked(deck)

	return noteID, true
}

// AddNotes adds a batch of notes. Each entry of the result is the new note
// id, or nil where the note was rejected as a duplicate.
func (s *State) AddNotes(notes []NoteInput) []*int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*int64, 0, len(notes))
	for _, n := range notes {
		if id, ok := s.addNoteLocked(n.Deck, n.Model, n.Fields, n.Tags); ok {
			idCopy := id
			results = append(results, &idCopy)
		} else {
			results = append(results, nil)
		}
	}
	return results
}

// NoteInput is the caller-supplied shape for batch note creation.
type NoteInput struct {
	Deck   string
	Model  string
	Fields map[string]string
	Tags   []string
}

// CanAddNotes reports, per note, whether an add would succeed (duplicate
// detection without mutation).
func (s *State) CanAddNotes(notes []NoteInput) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]bool, 0, len(notes))
	for _, n := range notes {
		results = append(results, !s.isDuplicateLocked(n.Deck, n.Model, n.Fields))
	}
	return results
}

// GetNote returns a copy of a note, for tests.
func (s *State) GetNote(id int64) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, false
	}
	return *n, true
}

// GetCard returns a copy of a card, for tests.
func (s *State) GetCard(id int64) (Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return Card{}, false
	}
	return *c, true
}

// CardsOfNote returns the ids of all cards referencing a note, in insertion order.
func (s *State) CardsOfNote(noteID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, cid := range s.cardOrder {
		if s.cards[cid].NoteID == noteID {
			ids = append(ids, cid)
		}
	}
	return ids
}

// UpdateNoteFields merges field values into a note. When the model's first
// or second field changes, the cached question/answer on every card of the
// note is refreshed. Unknown note ids are a no-op.
func (s *State) UpdateNoteFields(noteID int64, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return
	}
	for k, v := range fields {
		note.Fields[k] = v
	}

	fieldNames := s.models[note.Model]
	for _, cid := range s.cardOrder {
		card := s.cards[cid]
		if card.NoteID != noteID {
			continue
		}
		if len(fieldNames) > 0 {
			if v, ok := fields[fieldNames[0]]; ok {
				card.Question = v
			}
		}
		if len(fieldNames) > 1 {
			if v, ok := fields[fieldNames[1]]; ok {
				card.Answer = v
			}
		}
	}
}

// DeleteNotes removes notes and cascades to every card referencing them.
func (s *State) DeleteNotes(noteIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[int64]struct{}, len(noteIDs))
	for _, id := range noteIDs {
		if _, ok := s.notes[id]; ok {
			delete(s.notes, id)
			doomed[id] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return
	}

	s.noteOrder = filterIDs(s.noteOrder, func(id int64) bool {
		_, gone := doomed[id]
		return !gone
	})
	s.cardOrder = filterIDs(s.cardOrder, func(cid int64) bool {
		card := s.cards[cid]
		if _, gone := doomed[card.NoteID]; gone {
			delete(s.cards, cid)
			return false
		}
		return true
	})
}

func filterIDs(ids []int64, keep func(int64) bool) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}

// ChangeDeck reassigns cards to a deck, creating it if needed. The owning
// note's deck is deliberately left alone; cards and notes can diverge.
func (s *State) ChangeDeck(cardIDs []int64, deck string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createDeckLocked(deck)
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			card.Deck = deck
		}
	}
}

// AddTags appends the space-separated tags to each note and registers them
// in the global vocabulary.
func (s *State) AddTags(noteIDs []int64, tags string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newTags := strings.Fields(tags)
	for _, id := range noteIDs {
		note, ok := s.notes[id]
		if !ok {
			continue
		}
		for _, t := range newTags {
			if !hasTag(note.Tags, t) {
				note.Tags = append(note.Tags, t)
			}
			s.tags[t] = struct{}{}
		}
	}
}

// RemoveTags drops the space-separated tags from each note's tag set.
func (s *State) RemoveTags(noteIDs []int64, tags string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]struct{})
	for _, t := range strings.Fields(tags) {
		remove[t] = struct{}{}
	}
	for _, id := range noteIDs {
		note, ok := s.notes[id]
		if !ok {
			continue
		}
		kept := note.Tags[:0]
		for _, t := range note.Tags {
			if _, drop := remove[t]; !drop {
				kept = append(kept, t)
			}
		}
		note.Tags = kept
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// Suspend sets the suspended flag on each known card.
func (s *State) Suspend(cardIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			card.Suspended = true
		}
	}
}

// Unsuspend clears the suspended flag on each known card.
func (s *State) Unsuspend(cardIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			card.Suspended = false
		}
	}
}

// AreSuspended reports the suspended flag per card; unknown ids read false.
func (s *State) AreSuspended(cardIDs []int64) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, 0, len(cardIDs))
	for _, id := range cardIDs {
		card, ok := s.cards[id]
		out = append(out, ok && card.Suspended)
	}
	return out
}

// AreBuried reports the buried flag per card; unknown ids read false.
func (s *State) AreBuried(cardIDs []int64) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, 0, len(cardIDs))
	for _, id := range cardIDs {
		card, ok := s.cards[id]
		out = append(out, ok && card.Buried)
	}
	return out
}

// ForgetCards resets cards to the new state: queue, type, interval, lapses
// and due go to zero and the ease factor back to the default.
func (s *State) ForgetCards(cardIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range cardIDs {
		card, ok := s.cards[id]
		if !ok {
			continue
		}
		card.Queue = QueueNew
		card.Type = 0
		card.Interval = 0
		card.Factor = DefaultFactor
		card.Lapses = 0
		card.Due = 0
	}
}

// SetEaseFactors assigns factors to cards pairwise by position. The result
// carries a per-card success flag; an unknown id yields false without
// failing the batch.
func (s *State) SetEaseFactors(cardIDs []int64, factors []int) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(cardIDs)
	if len(factors) < n {
		n = len(factors)
	}
	out := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		if card, ok := s.cards[cardIDs[i]]; ok {
			card.Factor = factors[i]
			out = append(out, true)
		} else {
			out = append(out, false)
		}
	}
	return out
}

// GetEaseFactors reads the ease factor per card; unknown ids read 0.
func (s *State) GetEaseFactors(cardIDs []int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(cardIDs))
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			out = append(out, card.Factor)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// GetIntervals reads the interval in days per card; unknown ids read 0.
func (s *State) GetIntervals(cardIDs []int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(cardIDs))
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			out = append(out, card.Interval)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// GetIntervalsComplete is the complete=true variant, one history list per card.
func (s *State) GetIntervalsComplete(cardIDs []int64) [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int, 0, len(cardIDs))
	for _, id := range cardIDs {
		if card, ok := s.cards[id]; ok {
			out = append(out, []int{card.Interval})
		} else {
			out = append(out, []int{0})
		}
	}
	return out
}

// DeckStat summarizes queue counts for one deck.
type DeckStat struct {
	DeckID      int64  `json:"deck_id"`
	Name        string `json:"name"`
	NewCount    int    `json:"new_count"`
	LearnCount  int    `json:"learn_count"`
	ReviewCount int    `json:"review_count"`
	TotalInDeck int    `json:"total_in_deck"`
}

// DeckStats computes queue counts for the named decks, keyed by deck id.
// Unknown deck names are silently skipped.
func (s *State) DeckStats(deckNames []string) map[string]DeckStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]DeckStat)
	for _, name := range deckNames {
		deckID, ok := s.decks[name]
		if !ok {
			continue
		}
		stat := DeckStat{DeckID: deckID, Name: name}
		for _, cid := range s.cardOrder {
			card := s.cards[cid]
			if card.Deck != name {
				continue
			}
			stat.TotalInDeck++
			switch card.Queue {
			case QueueNew:
				stat.NewCount++
			case QueueLearning:
				stat.LearnCount++
			case QueueReview:
				stat.ReviewCount++
			}
		}
		out[fmt.Sprintf("%d", deckID)] = stat
	}
	return out
}

// ReviewsToday returns the fixture count of cards reviewed today.
func (s *State) ReviewsToday() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewsToday
}

// ReviewsByDay returns [daysAgo, count] pairs for the trailing week.
func (s *State) ReviewsByDay() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int, len(s.reviewsByDay))
	copy(out, s.reviewsByDay)
	return out
}

// AddReview appends a review event for a card and returns it. Reviews are
// never mutated after the fact.
func (s *State) AddReview(cardID int64, ease, interval, lastInterval, factor int, timeMs int64) Review {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Review{
		ID:           s.nextReviewID,
		CardID:       cardID,
		Ease:         ease,
		Interval:     interval,
		LastInterval: lastInterval,
		Factor:       factor,
		TimeMs:       timeMs,
	}
	s.nextReviewID++
	s.reviews = append(s.reviews, r)
	return r
}

// ReviewsOfCards returns review history per card id, keyed by the decimal
// card id as AnkiConnect does.
func (s *State) ReviewsOfCards(cardIDs []int64) map[string][]Review {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Review, len(cardIDs))
	for _, id := range cardIDs {
		key := fmt.Sprintf("%d", id)
		out[key] = []Review{}
		for _, r := range s.reviews {
			if r.CardID == id {
				out[key] = append(out[key], r)
			}
		}
	}
	return out
}
