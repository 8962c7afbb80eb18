package mockanki

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Server exposes a State over the AnkiConnect wire protocol: JSON POST
// bodies of {action, version, params} answered with {result, error}. Every
// reply is HTTP 200; failures travel in the error field.
type Server struct {
	state  *State
	logger *zap.Logger
}

// NewServer wraps a State in an HTTP facade. A nil logger disables logging.
func NewServer(state *State, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{state: state, logger: logger}
}

// State returns the backing collection, for direct inspection in tests.
func (s *Server) State() *State {
	return s.state
}

type rpcRequest struct {
	Action  string          `json:"action"`
	Version int             `json:"version"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Result any `json:"result"`
	Error  any `json:"error"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, nil, err.Error())
		return
	}

	result, err := s.dispatch(req.Action, req.Params)
	if err != nil {
		s.logger.Debug("action failed", zap.String("action", req.Action), zap.Error(err))
		writeEnvelope(w, nil, err.Error())
		return
	}
	s.logger.Debug("action handled", zap.String("action", req.Action))
	writeEnvelope(w, result, nil)
}

func writeEnvelope(w http.ResponseWriter, result any, errVal any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{Result: result, Error: errVal})
}

// wire shapes shared by several actions

type wireNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

func (n wireNote) input() NoteInput {
	return NoteInput{Deck: n.DeckName, Model: n.ModelName, Fields: n.Fields, Tags: n.Tags}
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// dispatch routes one action to its handler. Unknown actions are reported
// in the error field, never as a transport failure.
func (s *Server) dispatch(action string, raw json.RawMessage) (any, error) {
	switch action {
	case "version":
		return 6, nil

	case "deckNames":
		return s.state.DeckNames(), nil

	case "createDeck":
		p, err := decodeParams[struct {
			Deck string `json:"deck"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.CreateDeck(p.Deck), nil

	case "modelNames":
		return s.state.ModelNames(), nil

	case "modelFieldNames":
		p, err := decodeParams[struct {
			ModelName string `json:"modelName"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.ModelFieldNames(p.ModelName)

	case "getTags":
		return s.state.Tags(), nil

	case "addNote":
		p, err := decodeParams[struct {
			Note wireNote `json:"note"`
		}](raw)
		if err != nil {
			return nil, err
		}
		if id, ok := s.state.AddNote(p.Note.DeckName, p.Note.ModelName, p.Note.Fields, p.Note.Tags); ok {
			return id, nil
		}
		return nil, nil // duplicate: null result, no error

	case "addNotes":
		p, err := decodeParams[struct {
			Notes []wireNote `json:"notes"`
		}](raw)
		if err != nil {
			return nil, err
		}
		inputs := make([]NoteInput, len(p.Notes))
		for i, n := range p.Notes {
			inputs[i] = n.input()
		}
		return s.state.AddNotes(inputs), nil

	case "canAddNotes":
		p, err := decodeParams[struct {
			Notes []wireNote `json:"notes"`
		}](raw)
		if err != nil {
			return nil, err
		}
		inputs := make([]NoteInput, len(p.Notes))
		for i, n := range p.Notes {
			inputs[i] = n.input()
		}
		return s.state.CanAddNotes(inputs), nil

	case "findNotes":
		p, err := decodeParams[struct {
			Query string `json:"query"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.FindNotes(p.Query), nil

	case "findCards":
		p, err := decodeParams[struct {
			Query string `json:"query"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.FindCards(p.Query), nil

	case "notesInfo":
		p, err := decodeParams[struct {
			Notes []int64 `json:"notes"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.NotesInfo(p.Notes), nil

	case "cardsInfo":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.CardsInfo(p.Cards), nil

	case "getIntervals":
		p, err := decodeParams[struct {
			Cards    []int64 `json:"cards"`
			Complete bool    `json:"complete"`
		}](raw)
		if err != nil {
			return nil, err
		}
		if p.Complete {
			return s.state.GetIntervalsComplete(p.Cards), nil
		}
		return s.state.GetIntervals(p.Cards), nil

	case "addTags":
		p, err := decodeParams[struct {
			Notes []int64 `json:"notes"`
			Tags  string  `json:"tags"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.AddTags(p.Notes, p.Tags)
		return nil, nil

	case "removeTags":
		p, err := decodeParams[struct {
			Notes []int64 `json:"notes"`
			Tags  string  `json:"tags"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.RemoveTags(p.Notes, p.Tags)
		return nil, nil

	case "updateNoteFields":
		p, err := decodeParams[struct {
			Note struct {
				ID     int64             `json:"id"`
				Fields map[string]string `json:"fields"`
			} `json:"note"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.UpdateNoteFields(p.Note.ID, p.Note.Fields)
		return nil, nil

	case "deleteNotes":
		p, err := decodeParams[struct {
			Notes []int64 `json:"notes"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.DeleteNotes(p.Notes)
		return nil, nil

	case "changeDeck":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
			Deck  string  `json:"deck"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.ChangeDeck(p.Cards, p.Deck)
		return nil, nil

	case "suspend":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.Suspend(p.Cards)
		return true, nil

	case "unsuspend":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.Unsuspend(p.Cards)
		return true, nil

	case "areSuspended":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.AreSuspended(p.Cards), nil

	case "areBuried":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.AreBuried(p.Cards), nil

	case "forgetCards":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		s.state.ForgetCards(p.Cards)
		return nil, nil

	case "setEaseFactors":
		p, err := decodeParams[struct {
			Cards       []int64 `json:"cards"`
			EaseFactors []int   `json:"easeFactors"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.SetEaseFactors(p.Cards, p.EaseFactors), nil

	case "getEaseFactors":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.GetEaseFactors(p.Cards), nil

	case "getDeckStats":
		p, err := decodeParams[struct {
			Decks []string `json:"decks"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.DeckStats(p.Decks), nil

	case "getNumCardsReviewedToday":
		return s.state.ReviewsToday(), nil

	case "getNumCardsReviewedByDay":
		return s.state.ReviewsByDay(), nil

	case "getReviewsOfCards":
		p, err := decodeParams[struct {
			Cards []int64 `json:"cards"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return s.state.ReviewsOfCards(p.Cards), nil

	case "getCollectionStatsHTML":
		return "<html><body>Mock stats</body></html>", nil

	case "sync", "guiAddCards":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}
