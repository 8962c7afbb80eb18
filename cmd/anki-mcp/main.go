package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flashbridge/anki-mcp/internal/anki"
	"github.com/flashbridge/anki-mcp/internal/config"
)

const serverInstructions = `
This server is a bridge to a running Anki desktop instance via the
AnkiConnect add-on. Anki must be open for the tools to work; use
anki_health_check first if a tool reports a connection error.

Guidance for creating cards:
1. Keep each card focused on a single fact or concept.
2. Prefer short, unambiguous questions on the front.
3. Use tags consistently so decks stay searchable.
4. Duplicate cards (same first field in the same deck) are skipped,
   not overwritten - rephrase the front if you want a variant.
5. For Spanish study decks, prefer the add_spanish_* tools: they
   format genders, verb classes, and cloze deletions consistently.

Search queries support a subset of Anki's search syntax:
deck:NAME, tag:NAME, prop:ease<N, prop:lapses>=N, is:suspended,
is:buried, and is:due. Unrecognized terms are ignored.
`

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := anki.NewClient(cfg.Anki.URL, cfg.Anki.Timeout, logger)
	svc := NewService(client, logger)

	s := server.NewMCPServer(
		"Anki MCP",
		"1.0.0",
		server.WithInstructions(serverInstructions),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
	registerTools(s, svc)

	logger.Info("starting stdio server",
		zap.String("anki_url", cfg.Anki.URL),
		zap.Duration("timeout", cfg.Anki.Timeout))

	if err := server.ServeStdio(s); err != nil {
		logger.Fatal("server terminated", zap.Error(err))
	}
}

// newLogger builds a development-style logger on stderr. Stdout is owned
// by the MCP transport and must stay clean.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func registerTools(s *server.MCPServer, svc *Service) {
	// Collection inspection

	s.AddTool(mcp.NewTool("anki_health_check",
		mcp.WithDescription("Check that Anki is running and AnkiConnect is reachable. Call this first when any other tool reports a connection error."),
	), svc.handleHealthCheck)

	s.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List all deck names in the Anki collection."),
	), svc.handleListDecks)

	s.AddTool(mcp.NewTool("list_note_types",
		mcp.WithDescription("List all note types (models) and the fields each one defines."),
	), svc.handleListNoteTypes)

	s.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag used anywhere in the collection."),
	), svc.handleListTags)

	// Note creation

	s.AddTool(mcp.NewTool("add_flashcard",
		mcp.WithDescription(
			"Add a single flashcard to a deck. The deck is created if it does not "+
				"exist. A card whose front duplicates an existing card in the same "+
				"deck is skipped and reported, not treated as an error.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the card to"),
		),
		mcp.WithString("front",
			mcp.Required(),
			mcp.Description("Front (question) text"),
		),
		mcp.WithString("back",
			mcp.Required(),
			mcp.Description("Back (answer) text"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach to the note"),
		),
		mcp.WithString("model",
			mcp.Description("Note type to use (default: Basic)"),
		),
	), svc.handleAddFlashcard)

	s.AddTool(mcp.NewTool("add_flashcards_batch",
		mcp.WithDescription(
			"Add many flashcards to one deck in a single call. Each entry needs "+
				"'front' and 'back' and may carry its own 'tags'; top-level tags are "+
				"merged into every card. Duplicates are counted and skipped.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the cards to"),
		),
		mcp.WithArray("cards",
			mcp.Required(),
			mcp.Description("Cards to add: objects with front, back, and optional tags"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags applied to every card in the batch"),
		),
		mcp.WithString("model",
			mcp.Description("Note type to use (default: Basic)"),
		),
	), svc.handleAddFlashcardsBatch)

	s.AddTool(mcp.NewTool("add_cloze_card",
		mcp.WithDescription(
			"Add a cloze deletion card. The text must contain cloze markup such "+
				"as {{c1::hidden}}; Anki generates one card per cloze number.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the card to"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Cloze text with {{c1::...}} markup"),
		),
		mcp.WithString("extra",
			mcp.Description("Extra info shown on the answer side"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach to the note"),
		),
	), svc.handleAddClozeCard)

	// Search

	s.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription(
			"Search notes with Anki query syntax (deck:NAME, tag:NAME, free "+
				"text) and return a summary of each match.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Anki search query, e.g. deck:Spanish tag:verb"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum notes to return (default: 20)"),
		),
	), svc.handleSearchNotes)

	s.AddTool(mcp.NewTool("find_cards",
		mcp.WithDescription(
			"Search cards with Anki query syntax, including scheduling "+
				"predicates such as prop:ease<2.0, prop:lapses>=4, is:suspended, "+
				"and is:due. Returns per-card scheduling details.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Anki card search query, e.g. deck:Spanish prop:ease<2.0"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum cards to return (default: 20)"),
		),
	), svc.handleFindCards)

	// Note maintenance

	s.AddTool(mcp.NewTool("update_note_fields",
		mcp.WithDescription("Update one or more fields of an existing note. Unmentioned fields keep their values."),
		mcp.WithNumber("note_id",
			mcp.Required(),
			mcp.Description("ID of the note to update"),
		),
		mcp.WithObject("fields",
			mcp.Required(),
			mcp.Description("Field name to new value mapping, e.g. {\"Front\": \"new question\"}"),
		),
	), svc.handleUpdateNoteFields)

	s.AddTool(mcp.NewTool("delete_notes",
		mcp.WithDescription("Permanently delete notes and all cards generated from them. This cannot be undone."),
		mcp.WithArray("note_ids",
			mcp.Required(),
			mcp.Description("IDs of the notes to delete"),
		),
	), svc.handleDeleteNotes)

	s.AddTool(mcp.NewTool("add_tags",
		mcp.WithDescription("Add tags to existing notes."),
		mcp.WithArray("note_ids",
			mcp.Required(),
			mcp.Description("IDs of the notes to tag"),
		),
		mcp.WithString("tags",
			mcp.Required(),
			mcp.Description("Space-separated tags to add"),
		),
	), svc.handleAddTags)

	s.AddTool(mcp.NewTool("remove_tags",
		mcp.WithDescription("Remove tags from existing notes."),
		mcp.WithArray("note_ids",
			mcp.Required(),
			mcp.Description("IDs of the notes to untag"),
		),
		mcp.WithString("tags",
			mcp.Required(),
			mcp.Description("Space-separated tags to remove"),
		),
	), svc.handleRemoveTags)

	// Card management

	s.AddTool(mcp.NewTool("change_deck",
		mcp.WithDescription("Move cards to a different deck. Only the cards move; the owning notes keep their original deck."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to move"),
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Destination deck (created if missing)"),
		),
	), svc.handleChangeDeck)

	s.AddTool(mcp.NewTool("suspend_cards",
		mcp.WithDescription("Suspend cards so they no longer come up for review."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to suspend"),
		),
	), svc.handleSuspendCards)

	s.AddTool(mcp.NewTool("unsuspend_cards",
		mcp.WithDescription("Unsuspend cards so they return to the review rotation."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to unsuspend"),
		),
	), svc.handleUnsuspendCards)

	s.AddTool(mcp.NewTool("card_status",
		mcp.WithDescription("Report whether each card is active, suspended, or buried."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to check"),
		),
	), svc.handleCardStatus)

	s.AddTool(mcp.NewTool("forget_cards",
		mcp.WithDescription("Reset cards to new: interval, ease factor, and lapse count are all cleared. Review history is kept."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to reset"),
		),
	), svc.handleForgetCards)

	s.AddTool(mcp.NewTool("get_ease_factors",
		mcp.WithDescription("Read the ease factor of each card. 2500 means 2.5x; lower is harder."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to read"),
		),
	), svc.handleGetEaseFactors)

	s.AddTool(mcp.NewTool("set_ease_factors",
		mcp.WithDescription("Set the ease factor of each card, pairwise with card_ids. Unknown cards are reported, not fatal."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to modify"),
		),
		mcp.WithArray("ease_factors",
			mcp.Required(),
			mcp.Description("New ease factors, one per card id (2500 = 2.5x)"),
		),
	), svc.handleSetEaseFactors)

	s.AddTool(mcp.NewTool("get_intervals",
		mcp.WithDescription("Read the current review interval in days for each card."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to read"),
		),
	), svc.handleGetIntervals)

	// Statistics

	s.AddTool(mcp.NewTool("deck_stats",
		mcp.WithDescription("Summarize new, learning, and review queue counts for each named deck."),
		mcp.WithArray("decks",
			mcp.Required(),
			mcp.Description("Deck names to summarize"),
		),
	), svc.handleDeckStats)

	s.AddTool(mcp.NewTool("reviews_today",
		mcp.WithDescription("Report how many cards were reviewed today."),
	), svc.handleReviewsToday)

	s.AddTool(mcp.NewTool("reviews_by_day",
		mcp.WithDescription("Report review counts per day for the recent history."),
	), svc.handleReviewsByDay)

	s.AddTool(mcp.NewTool("card_reviews",
		mcp.WithDescription("Show the full review log of each card: grade, interval change, ease, and answer time."),
		mcp.WithArray("card_ids",
			mcp.Required(),
			mcp.Description("IDs of the cards to inspect"),
		),
	), svc.handleCardReviews)

	s.AddTool(mcp.NewTool("sync_anki",
		mcp.WithDescription("Synchronize the local Anki collection with AnkiWeb."),
	), svc.handleSync)

	// Spanish study helpers

	s.AddTool(mcp.NewTool("add_spanish_vocab",
		mcp.WithDescription(
			"Add a Spanish vocabulary card with consistent formatting. Nouns "+
				"get their article and gender on the front; an example sentence "+
				"goes on the back.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the card to"),
		),
		mcp.WithString("spanish",
			mcp.Required(),
			mcp.Description("The Spanish word"),
		),
		mcp.WithString("english",
			mcp.Required(),
			mcp.Description("English translation"),
		),
		mcp.WithString("example",
			mcp.Description("Example sentence using the word"),
		),
		mcp.WithString("gender",
			mcp.Description("Grammatical gender for nouns: m, f, el, or la"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach (defaults to suggested noun tags)"),
		),
	), svc.handleAddSpanishVocab)

	s.AddTool(mcp.NewTool("add_spanish_verb",
		mcp.WithDescription(
			"Add a Spanish verb card. The verb class (AR/ER/IR) is shown on "+
				"the front and verb-class and reflexive tags are added "+
				"automatically.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the card to"),
		),
		mcp.WithString("infinitive",
			mcp.Required(),
			mcp.Description("The verb in infinitive form, e.g. hablar or levantarse"),
		),
		mcp.WithString("english",
			mcp.Required(),
			mcp.Description("English translation"),
		),
		mcp.WithString("conjugation_notes",
			mcp.Description("Irregularities or conjugation notes"),
		),
		mcp.WithString("example",
			mcp.Description("Example sentence using the verb"),
		),
		mcp.WithArray("tags",
			mcp.Description("Extra tags beyond the suggested ones"),
		),
	), svc.handleAddSpanishVerb)

	s.AddTool(mcp.NewTool("add_spanish_sentence_cloze",
		mcp.WithDescription(
			"Turn a Spanish sentence into a cloze card that hides the target "+
				"word. The first occurrence of the word is replaced with cloze "+
				"markup; the English translation goes in the extra field.",
		),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to add the card to"),
		),
		mcp.WithString("sentence",
			mcp.Required(),
			mcp.Description("The full Spanish sentence"),
		),
		mcp.WithString("target_word",
			mcp.Required(),
			mcp.Description("The word in the sentence to hide"),
		),
		mcp.WithString("english",
			mcp.Description("English translation of the sentence"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach to the note"),
		),
	), svc.handleAddSpanishSentenceCloze)

	s.AddTool(mcp.NewTool("suggest_spanish_tags",
		mcp.WithDescription("Suggest tags for a Spanish word based on its part of speech and shape. Does not modify the collection."),
		mcp.WithString("word",
			mcp.Required(),
			mcp.Description("The Spanish word to analyze"),
		),
		mcp.WithString("pos",
			mcp.Description("Part of speech: noun, verb, adjective, etc."),
		),
		mcp.WithArray("extra_tags",
			mcp.Description("Extra tags to include verbatim"),
		),
	), svc.handleSuggestSpanishTags)

	// Export

	s.AddTool(mcp.NewTool("export_deck",
		mcp.WithDescription("Export every card of a deck to an .apkg package file that Anki can import."),
		mcp.WithString("deck",
			mcp.Required(),
			mcp.Description("Deck to export"),
		),
		mcp.WithString("output_path",
			mcp.Required(),
			mcp.Description("Filesystem path for the .apkg file"),
		),
	), svc.handleExportDeck)
}
