package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flashbridge/anki-mcp/internal/anki"
	"github.com/flashbridge/anki-mcp/internal/mockanki"
)

func newTestService(t *testing.T) (*Service, *mockanki.State) {
	t.Helper()
	backend := mockanki.NewServer(mockanki.NewState(), zap.NewNop())
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client := anki.NewClient(srv.URL, 5*time.Second, zap.NewNop())
	return NewService(client, zap.NewNop()), backend.State()
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestHandleHealthCheck(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleHealthCheck(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "AnkiConnect version 6")
}

func TestHandleHealthCheckDown(t *testing.T) {
	client := anki.NewClient("http://127.0.0.1:1", time.Second, zap.NewNop())
	svc := NewService(client, zap.NewNop())

	result, err := svc.handleHealthCheck(context.Background(), callRequest(nil))
	require.NoError(t, err, "transport failures are reported in the result, not the error")
	assert.True(t, result.IsError)
}

func TestHandleAddFlashcard(t *testing.T) {
	svc, state := newTestService(t)

	result, err := svc.handleAddFlashcard(context.Background(), callRequest(map[string]interface{}{
		"deck":  "Spanish",
		"front": "hola",
		"back":  "hello",
		"tags":  []interface{}{"greeting"},
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "✓ Added flashcard to 'Spanish'")
	assert.Contains(t, text, "Note ID:")
	assert.Contains(t, state.DeckNames(), "Spanish")

	// The same card again is a duplicate, reported without an error result.
	result, err = svc.handleAddFlashcard(context.Background(), callRequest(map[string]interface{}{
		"deck":  "Spanish",
		"front": "hola",
		"back":  "hello",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "⚠ Duplicate")
}

func TestHandleAddFlashcardMissingArgs(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleAddFlashcard(context.Background(), callRequest(map[string]interface{}{
		"deck": "Spanish",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "front")
}

func TestHandleAddFlashcardsBatch(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleAddFlashcardsBatch(context.Background(), callRequest(map[string]interface{}{
		"deck": "Spanish",
		"tags": []interface{}{"lesson-1"},
		"cards": []interface{}{
			map[string]interface{}{"front": "uno", "back": "one"},
			map[string]interface{}{"front": "dos", "back": "two", "tags": []interface{}{"number"}},
			map[string]interface{}{"front": "uno", "back": "one again"},
		},
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Added: 2")
	assert.Contains(t, text, "Duplicates skipped: 1")
	assert.Contains(t, text, "Total: 3")
}

func TestHandleSearchNotes(t *testing.T) {
	svc, state := newTestService(t)
	state.AddNote("Spanish", "Basic", map[string]string{"Front": "gato", "Back": "cat"}, []string{"animal"})
	state.AddNote("French", "Basic", map[string]string{"Front": "chat", "Back": "cat"}, nil)

	result, err := svc.handleSearchNotes(context.Background(), callRequest(map[string]interface{}{
		"query": "deck:Spanish",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Front: gato")
	assert.Contains(t, text, "[animal]")
	assert.NotContains(t, text, "chat")

	result, err = svc.handleSearchNotes(context.Background(), callRequest(map[string]interface{}{
		"query": "deck:Klingon",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No notes found")
}

func TestHandleFindCardsWithSchedulingQuery(t *testing.T) {
	svc, state := newTestService(t)
	state.AddProblemCard("Spanish", true, false)
	state.AddProblemCard("Spanish", false, false)

	result, err := svc.handleFindCards(context.Background(), callRequest(map[string]interface{}{
		"query": "prop:ease<2.0",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 cards")
	assert.Contains(t, text, "ease=1.50")
}

func TestHandleCardLifecycleTools(t *testing.T) {
	svc, state := newTestService(t)
	ctx := context.Background()

	noteID, _ := state.AddNote("Spanish", "Basic", map[string]string{"Front": "perro", "Back": "dog"}, nil)
	cardID := state.CardsOfNote(noteID)[0]
	idArg := []interface{}{float64(cardID)}

	result, err := svc.handleSuspendCards(ctx, callRequest(map[string]interface{}{"card_ids": idArg}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Suspended 1 cards")

	result, err = svc.handleCardStatus(ctx, callRequest(map[string]interface{}{"card_ids": idArg}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "suspended")

	result, err = svc.handleUnsuspendCards(ctx, callRequest(map[string]interface{}{"card_ids": idArg}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Unsuspended 1 cards")

	result, err = svc.handleChangeDeck(ctx, callRequest(map[string]interface{}{
		"card_ids": idArg,
		"deck":     "Archive",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Moved 1 cards to deck 'Archive'")

	card, _ := state.GetCard(cardID)
	assert.Equal(t, "Archive", card.Deck)
	note, _ := state.GetNote(noteID)
	assert.Equal(t, "Spanish", note.Deck)

	result, err = svc.handleSetEaseFactors(ctx, callRequest(map[string]interface{}{
		"card_ids":     idArg,
		"ease_factors": []interface{}{float64(1900)},
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Set ease factors on 1 of 1 cards")

	result, err = svc.handleGetEaseFactors(ctx, callRequest(map[string]interface{}{"card_ids": idArg}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "1900")

	result, err = svc.handleForgetCards(ctx, callRequest(map[string]interface{}{"card_ids": idArg}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Reset 1 cards")

	card, _ = state.GetCard(cardID)
	assert.Equal(t, 2500, card.Factor)
}

func TestHandleDeleteNotes(t *testing.T) {
	svc, state := newTestService(t)

	noteID, _ := state.AddNote("Default", "Basic", map[string]string{"Front": "doomed", "Back": "x"}, nil)

	result, err := svc.handleDeleteNotes(context.Background(), callRequest(map[string]interface{}{
		"note_ids": []interface{}{float64(noteID)},
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Deleted 1 notes")

	_, ok := state.GetNote(noteID)
	assert.False(t, ok)
}

func TestHandleTagTools(t *testing.T) {
	svc, state := newTestService(t)
	ctx := context.Background()

	noteID, _ := state.AddNote("Default", "Basic", map[string]string{"Front": "f", "Back": "b"}, nil)
	idArg := []interface{}{float64(noteID)}

	result, err := svc.handleAddTags(ctx, callRequest(map[string]interface{}{
		"note_ids": idArg,
		"tags":     "verb spanish",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Added tags 'verb spanish' to 1 notes")

	result, err = svc.handleRemoveTags(ctx, callRequest(map[string]interface{}{
		"note_ids": idArg,
		"tags":     "verb",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Removed tags")

	note, _ := state.GetNote(noteID)
	assert.Equal(t, []string{"spanish"}, note.Tags)
}

func TestHandleDeckStats(t *testing.T) {
	svc, state := newTestService(t)
	state.AddDueCard("Spanish")
	state.AddNote("Spanish", "Basic", map[string]string{"Front": "f", "Back": "b"}, nil)

	result, err := svc.handleDeckStats(context.Background(), callRequest(map[string]interface{}{
		"decks": []interface{}{"Spanish"},
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Spanish: 2 total")
	assert.Contains(t, text, "review: 1")
}

func TestHandleReviewTools(t *testing.T) {
	svc, state := newTestService(t)
	ctx := context.Background()

	result, err := svc.handleReviewsToday(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Cards reviewed today: 5")

	result, err = svc.handleReviewsByDay(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "reviews")

	cardID := state.AddDueCard("Default")
	state.AddReview(cardID, 3, 10, 5, 2500, 4200)

	result, err = svc.handleCardReviews(ctx, callRequest(map[string]interface{}{
		"card_ids": []interface{}{float64(cardID)},
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "1 reviews")
	assert.Contains(t, text, "good")
}

func TestHandleSync(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleSync(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "✓ Anki collection synchronized with AnkiWeb", resultText(t, result))
}

func TestHandleAddSpanishVocab(t *testing.T) {
	svc, state := newTestService(t)

	result, err := svc.handleAddSpanishVocab(context.Background(), callRequest(map[string]interface{}{
		"deck":    "Spanish",
		"spanish": "gato",
		"english": "cat",
		"gender":  "m",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "✓ Added vocabulary card to 'Spanish'")

	noteIDs := state.FindNotes("deck:Spanish")
	require.Len(t, noteIDs, 1)
	note, _ := state.GetNote(noteIDs[0])
	assert.Equal(t, "gato", note.Fields["Front"])
	assert.Contains(t, note.Fields["Back"], "(el - masculine)")
	assert.Contains(t, note.Tags, "noun")
}

func TestHandleAddSpanishVerb(t *testing.T) {
	svc, state := newTestService(t)

	result, err := svc.handleAddSpanishVerb(context.Background(), callRequest(map[string]interface{}{
		"deck":       "Spanish",
		"infinitive": "levantarse",
		"english":    "to get up",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "✓ Added verb card")

	noteIDs := state.FindNotes("deck:Spanish")
	require.Len(t, noteIDs, 1)
	note, _ := state.GetNote(noteIDs[0])
	assert.Contains(t, note.Tags, "verb-ar")
	assert.Contains(t, note.Tags, "reflexive")
}

func TestHandleAddSpanishSentenceCloze(t *testing.T) {
	svc, state := newTestService(t)

	result, err := svc.handleAddSpanishSentenceCloze(context.Background(), callRequest(map[string]interface{}{
		"deck":        "Spanish",
		"sentence":    "La casa es grande",
		"target_word": "casa",
		"english":     "The house is big",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "{{c1::casa}}")

	noteIDs := state.FindNotes("deck:Spanish")
	require.Len(t, noteIDs, 1)
	note, _ := state.GetNote(noteIDs[0])
	assert.Equal(t, "Cloze", note.Model)
	assert.Equal(t, "La {{c1::casa}} es grande", note.Fields["Text"])

	// A target that never occurs is a caller error.
	result, err = svc.handleAddSpanishSentenceCloze(context.Background(), callRequest(map[string]interface{}{
		"deck":        "Spanish",
		"sentence":    "La casa es grande",
		"target_word": "perro",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSuggestSpanishTags(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleSuggestSpanishTags(context.Background(), callRequest(map[string]interface{}{
		"word": "ponerse",
		"pos":  "verb",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "verb-er")
	assert.Contains(t, text, "reflexive")
}

func TestHandleExportDeck(t *testing.T) {
	svc, state := newTestService(t)
	state.AddNote("Spanish", "Basic", map[string]string{"Front": "hola", "Back": "hello"}, nil)

	outputPath := filepath.Join(t.TempDir(), "spanish.apkg")
	result, err := svc.handleExportDeck(context.Background(), callRequest(map[string]interface{}{
		"deck":        "Spanish",
		"output_path": outputPath,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Exported 1 cards")

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// No staging leftovers next to the package.
	entries, err := os.ReadDir(filepath.Dir(outputPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandleExportDeckBadPathLeavesNoFile(t *testing.T) {
	svc, state := newTestService(t)
	state.AddNote("Spanish", "Basic", map[string]string{"Front": "hola", "Back": "hello"}, nil)

	outputPath := filepath.Join(t.TempDir(), "missing", "spanish.apkg")
	result, err := svc.handleExportDeck(context.Background(), callRequest(map[string]interface{}{
		"deck":        "Spanish",
		"output_path": outputPath,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandleExportDeckEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.handleExportDeck(context.Background(), callRequest(map[string]interface{}{
		"deck":        "Empty",
		"output_path": filepath.Join(t.TempDir(), "empty.apkg"),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "no cards to export")
}

func TestHandleListTools(t *testing.T) {
	svc, state := newTestService(t)
	ctx := context.Background()
	state.CreateDeck("Spanish")

	result, err := svc.handleListDecks(ctx, callRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 decks")
	assert.Contains(t, text, "- Spanish")

	result, err = svc.handleListNoteTypes(ctx, callRequest(nil))
	require.NoError(t, err)
	text = resultText(t, result)
	assert.Contains(t, text, "Basic: [Front, Back]")
	assert.Contains(t, text, "Cloze: [Text, Extra]")

	result, err = svc.handleListTags(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No tags")
}

func TestHandleUpdateNoteFields(t *testing.T) {
	svc, state := newTestService(t)

	noteID, _ := state.AddNote("Default", "Basic", map[string]string{"Front": "before", "Back": "b"}, nil)

	result, err := svc.handleUpdateNoteFields(context.Background(), callRequest(map[string]interface{}{
		"note_id": float64(noteID),
		"fields":  map[string]interface{}{"Front": "after"},
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Updated note")

	note, _ := state.GetNote(noteID)
	assert.Equal(t, "after", note.Fields["Front"])
}

func TestMergeTags(t *testing.T) {
	got := mergeTags([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)

	assert.Empty(t, mergeTags(nil, nil))
}

func TestClipRespectsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "café", clip("café", 50))

	clipped := clip(strings.Repeat("ñ", 60), 50)
	assert.True(t, utf8.ValidString(clipped))
	assert.Equal(t, 50, utf8.RuneCountInString(clipped))
}

func TestHandleSearchNotesClipsMultibyteFields(t *testing.T) {
	svc, state := newTestService(t)
	state.AddNote("Spanish", "Basic", map[string]string{
		"Front": strings.Repeat("ñ", 60),
		"Back":  "tilde",
	}, nil)

	result, err := svc.handleSearchNotes(context.Background(), callRequest(map[string]interface{}{
		"query": "deck:Spanish",
	}))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(resultText(t, result)))
}
