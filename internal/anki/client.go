// Package anki is a client for the AnkiConnect HTTP API. It wraps the
// {action, version, params} request envelope and unwraps {result, error}
// responses, distinguishing backend-reported errors from transport failures.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Version is the AnkiConnect API version this client speaks.
const Version = 6

// DefaultURL is where AnkiConnect listens when Anki runs locally.
const DefaultURL = "http://localhost:8765"

// BackendError is an error reported by AnkiConnect itself: the HTTP exchange
// succeeded but the response envelope carried a non-null error field.
type BackendError struct {
	Action  string
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ankiconnect error on %s: %s", e.Action, e.Message)
}

// Client talks to a single AnkiConnect endpoint. All calls share one
// http.Client with a fixed overall timeout; there are no retries.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client for the given endpoint. A nil logger disables
// logging; a zero timeout falls back to 30 seconds.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke posts one action and decodes the result into out (skipped when out
// is nil). Transport failures are wrapped; envelope errors become
// *BackendError regardless of HTTP status.
func (c *Client) invoke(ctx context.Context, action string, params any, out any) error {
	reqID := uuid.NewString()
	c.logger.Debug("invoking ankiconnect action",
		zap.String("action", action),
		zap.String("request_id", reqID))

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{Action: action, Version: Version, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("ankiconnect transport failure",
			zap.String("action", action),
			zap.String("request_id", reqID),
			zap.Error(err))
		return fmt.Errorf("calling ankiconnect %s: %w", action, err)
	}
	defer httpResp.Body.Close()

	var envelope response
	if err := json.NewDecoder(httpResp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", action, err)
	}

	if envelope.Error != nil {
		c.logger.Debug("ankiconnect backend error",
			zap.String("action", action),
			zap.String("request_id", reqID),
			zap.String("backend_error", *envelope.Error))
		return &BackendError{Action: action, Message: *envelope.Error}
	}

	if out != nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("unmarshaling %s result: %w", action, err)
		}
	}
	return nil
}

// Health and introspection

// Version returns the AnkiConnect plugin version, doubling as a health check.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.invoke(ctx, "version", nil, &v)
	return v, err
}

// DeckNames lists all deck names.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invoke(ctx, "deckNames", nil, &names)
	return names, err
}

// ModelNames lists all note type names.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invoke(ctx, "modelNames", nil, &names)
	return names, err
}

// ModelFieldNames returns the ordered field names of one note type.
func (c *Client) ModelFieldNames(ctx context.Context, model string) ([]string, error) {
	var names []string
	err := c.invoke(ctx, "modelFieldNames", map[string]any{"modelName": model}, &names)
	return names, err
}

// GetTags returns every tag used in the collection.
func (c *Client) GetTags(ctx context.Context) ([]string, error) {
	var tags []string
	err := c.invoke(ctx, "getTags", nil, &tags)
	return tags, err
}

// Deck operations

// CreateDeck creates a deck and returns its id. Creating an existing deck
// succeeds with the existing id.
func (c *Client) CreateDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.invoke(ctx, "createDeck", map[string]any{"deck": name}, &id)
	return id, err
}

// EnsureDeck creates a deck if necessary, swallowing backend-reported
// failures: a "deck exists" complaint is success for our purposes.
func (c *Client) EnsureDeck(ctx context.Context, name string) error {
	_, err := c.CreateDeck(ctx, name)
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return nil
	}
	return err
}

// Note is the payload for adding a note.
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

// NoteField is one field of a notesInfo entry.
type NoteField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is one notesInfo result entry.
type NoteInfo struct {
	NoteID    int64                `json:"noteId"`
	ModelName string               `json:"modelName"`
	Tags      []string             `json:"tags"`
	Fields    map[string]NoteField `json:"fields"`
}

// CardInfo is one cardsInfo result entry.
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

// DeckStat summarizes queue counts for one deck.
type DeckStat struct {
	DeckID      int64  `json:"deck_id"`
	Name        string `json:"name"`
	NewCount    int    `json:"new_count"`
	LearnCount  int    `json:"learn_count"`
	ReviewCount int    `json:"review_count"`
	TotalInDeck int    `json:"total_in_deck"`
}

// Review is one revlog entry from getReviewsOfCards.
type Review struct {
	ID           int64 `json:"id"`
	Ease         int   `json:"ease"`
	Interval     int   `json:"ivl"`
	LastInterval int   `json:"lastIvl"`
	Factor       int   `json:"factor"`
	TimeMs       int64 `json:"time"`
	Type         int   `json:"type"`
}

// AddNote adds one note. A nil id with a nil error means the note was
// rejected as a duplicate; that is not an error condition.
func (c *Client) AddNote(ctx context.Context, note Note) (*int64, error) {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	var id *int64
	err := c.invoke(ctx, "addNote", map[string]any{"note": note}, &id)
	return id, err
}

// AddNotes adds notes in bulk. Result entries are nil for duplicates.
func (c *Client) AddNotes(ctx context.Context, notes []Note) ([]*int64, error) {
	var ids []*int64
	err := c.invoke(ctx, "addNotes", map[string]any{"notes": notes}, &ids)
	return ids, err
}

// CanAddNotes runs duplicate detection without adding anything.
func (c *Client) CanAddNotes(ctx context.Context, notes []Note) ([]bool, error) {
	var oks []bool
	err := c.invoke(ctx, "canAddNotes", map[string]any{"notes": notes}, &oks)
	return oks, err
}

// FindNotes runs an Anki search query and returns matching note ids.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.invoke(ctx, "findNotes", map[string]any{"query": query}, &ids)
	return ids, err
}

// NotesInfo fetches details for the given note ids.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	var infos []NoteInfo
	err := c.invoke(ctx, "notesInfo", map[string]any{"notes": noteIDs}, &infos)
	return infos, err
}

// UpdateNoteFields merges field values into an existing note.
func (c *Client) UpdateNoteFields(ctx context.Context, noteID int64, fields map[string]string) error {
	params := map[string]any{"note": map[string]any{"id": noteID, "fields": fields}}
	return c.invoke(ctx, "updateNoteFields", params, nil)
}

// DeleteNotes deletes notes along with their cards.
func (c *Client) DeleteNotes(ctx context.Context, noteIDs []int64) error {
	return c.invoke(ctx, "deleteNotes", map[string]any{"notes": noteIDs}, nil)
}

// AddTags adds space-separated tags to the given notes.
func (c *Client) AddTags(ctx context.Context, noteIDs []int64, tags string) error {
	return c.invoke(ctx, "addTags", map[string]any{"notes": noteIDs, "tags": tags}, nil)
}

// RemoveTags removes space-separated tags from the given notes.
func (c *Client) RemoveTags(ctx context.Context, noteIDs []int64, tags string) error {
	return c.invoke(ctx, "removeTags", map[string]any{"notes": noteIDs, "tags": tags}, nil)
}

// Card operations

// FindCards runs an Anki search query and returns matching card ids.
func (c *Client) FindCards(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.invoke(ctx, "findCards", map[string]any{"query": query}, &ids)
	return ids, err
}

// CardsInfo fetches details for the given card ids.
func (c *Client) CardsInfo(ctx context.Context, cardIDs []int64) ([]CardInfo, error) {
	var infos []CardInfo
	err := c.invoke(ctx, "cardsInfo", map[string]any{"cards": cardIDs}, &infos)
	return infos, err
}

// ChangeDeck moves cards to another deck, creating it if needed. The owning
// notes stay in their original deck.
func (c *Client) ChangeDeck(ctx context.Context, cardIDs []int64, deck string) error {
	return c.invoke(ctx, "changeDeck", map[string]any{"cards": cardIDs, "deck": deck}, nil)
}

// Suspend suspends the given cards.
func (c *Client) Suspend(ctx context.Context, cardIDs []int64) error {
	return c.invoke(ctx, "suspend", map[string]any{"cards": cardIDs}, nil)
}

// Unsuspend unsuspends the given cards.
func (c *Client) Unsuspend(ctx context.Context, cardIDs []int64) error {
	return c.invoke(ctx, "unsuspend", map[string]any{"cards": cardIDs}, nil)
}

// AreSuspended reports the suspended flag per card.
func (c *Client) AreSuspended(ctx context.Context, cardIDs []int64) ([]bool, error) {
	var flags []bool
	err := c.invoke(ctx, "areSuspended", map[string]any{"cards": cardIDs}, &flags)
	return flags, err
}

// AreBuried reports the buried flag per card.
func (c *Client) AreBuried(ctx context.Context, cardIDs []int64) ([]bool, error) {
	var flags []bool
	err := c.invoke(ctx, "areBuried", map[string]any{"cards": cardIDs}, &flags)
	return flags, err
}

// Scheduling

// ForgetCards resets cards to the new state, clearing all scheduling data.
func (c *Client) ForgetCards(ctx context.Context, cardIDs []int64) error {
	return c.invoke(ctx, "forgetCards", map[string]any{"cards": cardIDs}, nil)
}

// SetEaseFactors sets ease factors pairwise and reports per-card success.
func (c *Client) SetEaseFactors(ctx context.Context, cardIDs []int64, factors []int) ([]bool, error) {
	var oks []bool
	err := c.invoke(ctx, "setEaseFactors", map[string]any{"cards": cardIDs, "easeFactors": factors}, &oks)
	return oks, err
}

// GetEaseFactors reads ease factors per card.
func (c *Client) GetEaseFactors(ctx context.Context, cardIDs []int64) ([]int, error) {
	var factors []int
	err := c.invoke(ctx, "getEaseFactors", map[string]any{"cards": cardIDs}, &factors)
	return factors, err
}

// GetIntervals reads current intervals in days per card.
func (c *Client) GetIntervals(ctx context.Context, cardIDs []int64) ([]int, error) {
	var intervals []int
	err := c.invoke(ctx, "getIntervals", map[string]any{"cards": cardIDs, "complete": false}, &intervals)
	return intervals, err
}

// Statistics

// GetDeckStats returns per-deck queue counts, keyed by deck id.
func (c *Client) GetDeckStats(ctx context.Context, decks []string) (map[string]DeckStat, error) {
	var stats map[string]DeckStat
	err := c.invoke(ctx, "getDeckStats", map[string]any{"decks": decks}, &stats)
	return stats, err
}

// GetNumCardsReviewedToday returns today's review count.
func (c *Client) GetNumCardsReviewedToday(ctx context.Context) (int, error) {
	var n int
	err := c.invoke(ctx, "getNumCardsReviewedToday", nil, &n)
	return n, err
}

// GetNumCardsReviewedByDay returns [daysAgo, count] pairs.
func (c *Client) GetNumCardsReviewedByDay(ctx context.Context) ([][2]int, error) {
	var days [][2]int
	err := c.invoke(ctx, "getNumCardsReviewedByDay", nil, &days)
	return days, err
}

// GetReviewsOfCards returns review history per card id.
func (c *Client) GetReviewsOfCards(ctx context.Context, cardIDs []int64) (map[string][]Review, error) {
	var reviews map[string][]Review
	err := c.invoke(ctx, "getReviewsOfCards", map[string]any{"cards": cardIDs}, &reviews)
	return reviews, err
}

// Sync

// Sync synchronizes the local collection with AnkiWeb.
func (c *Client) Sync(ctx context.Context) error {
	return c.invoke(ctx, "sync", nil, nil)
}

// GetCollectionStatsHTML returns Anki's collection statistics report as HTML.
func (c *Client) GetCollectionStatsHTML(ctx context.Context, wholeCollection bool) (string, error) {
	var html string
	err := c.invoke(ctx, "getCollectionStatsHTML", map[string]any{"wholeCollection": wholeCollection}, &html)
	return html, err
}

// GuiAddCards opens the Add Cards dialog in the Anki GUI.
func (c *Client) GuiAddCards(ctx context.Context) error {
	return c.invoke(ctx, "guiAddCards", nil, nil)
}
