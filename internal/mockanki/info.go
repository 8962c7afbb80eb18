package mockanki

// NoteFieldInfo is one field entry of a notesInfo result.
type NoteFieldInfo struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo mirrors an AnkiConnect notesInfo entry.
type NoteInfo struct {
	NoteID    int64                    `json:"noteId"`
	ModelName string                   `json:"modelName"`
	Tags      []string                 `json:"tags"`
	Fields    map[string]NoteFieldInfo `json:"fields"`
}

// CardInfo mirrors an AnkiConnect cardsInfo entry.
type CardInfo struct {
	CardID    int64  `json:"cardId"`
	Note      int64  `json:"note"`
	DeckName  string `json:"deckName"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Factor    int    `json:"factor"`
	Interval  int    `json:"interval"`
	Lapses    int    `json:"lapses"`
	Queue     int    `json:"queue"`
	Type      int    `json:"type"`
	Due       int    `json:"due"`
	ModelName string `json:"modelName"`
}

// NotesInfo returns details for the given note ids. Ids that don't resolve
// are skipped rather than reported, matching AnkiConnect's behavior.
func (s *State) NotesInfo(noteIDs []int64) []NoteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := []NoteInfo{}
	for _, id := range noteIDs {
		note, ok := s.notes[id]
		if !ok {
			continue
		}
		fields := make(map[string]NoteFieldInfo, len(note.Fields))
		order := s.models[note.Model]
		for name, value := range note.Fields {
			fields[name] = NoteFieldInfo{Value: value, Order: fieldOrder(order, name)}
		}
		results = append(results, NoteInfo{
			NoteID:    note.ID,
			ModelName: note.Model,
			Tags:      append([]string(nil), note.Tags...),
			Fields:    fields,
		})
	}
	return results
}

func fieldOrder(declared []string, name string) int {
	for i, n := range declared {
		if n == name {
			return i
		}
	}
	return 0
}

// CardsInfo returns details for the given card ids, skipping unknown ids.
func (s *State) CardsInfo(cardIDs []int64) []CardInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := []CardInfo{}
	for _, id := range cardIDs {
		card, ok := s.cards[id]
		if !ok {
			continue
		}
		modelName := "Basic"
		if note, ok := s.notes[card.NoteID]; ok {
			modelName = note.Model
		}
		results = append(results, CardInfo{
			CardID:    card.ID,
			Note:      card.NoteID,
			DeckName:  card.Deck,
			Question:  card.Question,
			Answer:    card.Answer,
			Factor:    card.Factor,
			Interval:  card.Interval,
			Lapses:    card.Lapses,
			Queue:     card.Queue,
			Type:      card.Type,
			Due:       card.Due,
			ModelName: modelName,
		})
	}
	return results
}
