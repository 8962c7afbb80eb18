package anki

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flashbridge/anki-mcp/internal/mockanki"
)

func newTestClient(t *testing.T) (*Client, *mockanki.State) {
	t.Helper()
	backend := mockanki.NewServer(mockanki.NewState(), zap.NewNop())
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, zap.NewNop()), backend.State()
}

func TestVersion(t *testing.T) {
	client, _ := newTestClient(t)

	got, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version, got)
}

func TestDeckAndModelListing(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	decks, err := client.DeckNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Default"}, decks)

	models, err := client.ModelNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, models, "Basic")
	assert.Contains(t, models, "Cloze")

	fieldNames, err := client.ModelFieldNames(ctx, "Basic")
	require.NoError(t, err)
	assert.Equal(t, []string{"Front", "Back"}, fieldNames)
}

func TestModelFieldNamesBackendError(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.ModelFieldNames(context.Background(), "NoSuchModel")
	require.Error(t, err)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr), "expected a backend error, got %T: %v", err, err)
	assert.Equal(t, "modelFieldNames", backendErr.Action)
}

func TestTransportErrorIsNotBackendError(t *testing.T) {
	// Nothing listens on this port.
	client := NewClient("http://127.0.0.1:1", time.Second, zap.NewNop())

	_, err := client.Version(context.Background())
	require.Error(t, err)

	var backendErr *BackendError
	assert.False(t, errors.As(err, &backendErr), "connection failures must not look like backend errors")
}

func TestCreateAndEnsureDeck(t *testing.T) {
	client, state := newTestClient(t)
	ctx := context.Background()

	id, err := client.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, int64(100))

	// EnsureDeck tolerates the deck already existing.
	require.NoError(t, client.EnsureDeck(ctx, "Spanish"))
	require.NoError(t, client.EnsureDeck(ctx, "Brand New"))

	assert.Contains(t, state.DeckNames(), "Brand New")
}

func TestAddNoteAndDuplicate(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	note := Note{
		DeckName:  "Default",
		ModelName: "Basic",
		Fields:    map[string]string{"Front": "hola", "Back": "hello"},
		Tags:      []string{"greeting"},
	}

	id, err := client.AddNote(ctx, note)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.GreaterOrEqual(t, *id, int64(1000000000))

	// The duplicate is reported with a nil id, not an error.
	dup, err := client.AddNote(ctx, note)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestAddNotesBatch(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	notes := []Note{
		{DeckName: "Default", ModelName: "Basic", Fields: map[string]string{"Front": "uno", "Back": "one"}},
		{DeckName: "Default", ModelName: "Basic", Fields: map[string]string{"Front": "dos", "Back": "two"}},
		{DeckName: "Default", ModelName: "Basic", Fields: map[string]string{"Front": "uno", "Back": "one again"}},
	}

	ids, err := client.AddNotes(ctx, notes)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.NotNil(t, ids[0])
	assert.NotNil(t, ids[1])
	assert.Nil(t, ids[2], "in-batch duplicate should be skipped")

	can, err := client.CanAddNotes(ctx, notes[:1])
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, can)
}

func TestSearchRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.AddNote(ctx, Note{
		DeckName:  "Spanish",
		ModelName: "Basic",
		Fields:    map[string]string{"Front": "gato", "Back": "cat"},
		Tags:      []string{"animal"},
	})
	require.NoError(t, err)
	require.NotNil(t, id)

	noteIDs, err := client.FindNotes(ctx, "deck:Spanish tag:animal")
	require.NoError(t, err)
	assert.Equal(t, []int64{*id}, noteIDs)

	infos, err := client.NotesInfo(ctx, noteIDs)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "gato", infos[0].Fields["Front"].Value)
	assert.Equal(t, 0, infos[0].Fields["Front"].Order)
	assert.Equal(t, []string{"animal"}, infos[0].Tags)
}

func TestCardLifecycle(t *testing.T) {
	client, state := newTestClient(t)
	ctx := context.Background()

	id, err := client.AddNote(ctx, Note{
		DeckName:  "Spanish",
		ModelName: "Basic",
		Fields:    map[string]string{"Front": "perro", "Back": "dog"},
	})
	require.NoError(t, err)
	require.NotNil(t, id)

	cardIDs, err := client.FindCards(ctx, "deck:Spanish")
	require.NoError(t, err)
	require.Len(t, cardIDs, 1)

	infos, err := client.CardsInfo(ctx, cardIDs)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "perro", infos[0].Question)
	assert.Equal(t, 2500, infos[0].Factor)

	// Move the card; the note stays put.
	require.NoError(t, client.ChangeDeck(ctx, cardIDs, "Archive"))
	infos, err = client.CardsInfo(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, "Archive", infos[0].DeckName)
	note, ok := state.GetNote(*id)
	require.True(t, ok)
	assert.Equal(t, "Spanish", note.Deck)

	// Suspend / status / unsuspend.
	require.NoError(t, client.Suspend(ctx, cardIDs))
	suspended, err := client.AreSuspended(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, suspended)

	require.NoError(t, client.Unsuspend(ctx, cardIDs))
	suspended, err = client.AreSuspended(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, suspended)

	// Scheduling reads and writes.
	oks, err := client.SetEaseFactors(ctx, append(cardIDs, 999), []int{1900, 2000})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, oks)

	factors, err := client.GetEaseFactors(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, []int{1900}, factors)

	require.NoError(t, client.ForgetCards(ctx, cardIDs))
	factors, err = client.GetEaseFactors(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, []int{2500}, factors)

	intervals, err := client.GetIntervals(ctx, cardIDs)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, intervals)

	// Delete the owning note; the card goes with it.
	require.NoError(t, client.DeleteNotes(ctx, []int64{*id}))
	cardIDs, err = client.FindCards(ctx, "deck:Archive")
	require.NoError(t, err)
	assert.Empty(t, cardIDs)
}

func TestTagRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.AddNote(ctx, Note{
		DeckName:  "Default",
		ModelName: "Basic",
		Fields:    map[string]string{"Front": "front", "Back": "back"},
	})
	require.NoError(t, err)
	require.NotNil(t, id)

	require.NoError(t, client.AddTags(ctx, []int64{*id}, "verb spanish"))
	tags, err := client.GetTags(ctx)
	require.NoError(t, err)
	assert.Contains(t, tags, "verb")
	assert.Contains(t, tags, "spanish")

	require.NoError(t, client.RemoveTags(ctx, []int64{*id}, "verb"))
	infos, err := client.NotesInfo(ctx, []int64{*id})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.NotContains(t, infos[0].Tags, "verb")
}

func TestStatisticsRoundTrip(t *testing.T) {
	client, state := newTestClient(t)
	ctx := context.Background()

	state.AddDueCard("Spanish")
	cardID := state.AddProblemCard("Spanish", true, true)

	stats, err := client.GetDeckStats(ctx, []string{"Spanish"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	for _, stat := range stats {
		assert.Equal(t, "Spanish", stat.Name)
		assert.Equal(t, 2, stat.TotalInDeck)
	}

	today, err := client.GetNumCardsReviewedToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, today)

	byDay, err := client.GetNumCardsReviewedByDay(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, byDay)

	state.AddReview(cardID, 3, 12, 6, 2300, 5100)
	reviews, err := client.GetReviewsOfCards(ctx, []int64{cardID})
	require.NoError(t, err)
	history := reviews[strconv.FormatInt(cardID, 10)]
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].Ease)
	assert.Equal(t, 12, history[0].Interval)
}

func TestSync(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.Sync(context.Background()))
}

func TestGetCollectionStatsHTML(t *testing.T) {
	client, _ := newTestClient(t)

	html, err := client.GetCollectionStatsHTML(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, "<html>")
}

func TestGuiAddCards(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.GuiAddCards(context.Background()))
}

func TestUpdateNoteFields(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.AddNote(ctx, Note{
		DeckName:  "Default",
		ModelName: "Basic",
		Fields:    map[string]string{"Front": "before", "Back": "back"},
	})
	require.NoError(t, err)
	require.NotNil(t, id)

	require.NoError(t, client.UpdateNoteFields(ctx, *id, map[string]string{"Front": "after"}))

	infos, err := client.NotesInfo(ctx, []int64{*id})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "after", infos[0].Fields["Front"].Value)
	assert.Equal(t, "back", infos[0].Fields["Back"].Value)
}
