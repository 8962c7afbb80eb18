package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/flashbridge/anki-mcp/internal/anki"
	"github.com/flashbridge/anki-mcp/internal/apkg"
	"github.com/flashbridge/anki-mcp/internal/spanish"
)

// handleHealthCheck verifies Anki is reachable with AnkiConnect enabled.
func (s *Service) handleHealthCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	version, err := s.Client.Version(ctx)
	if err != nil {
		return s.errorResult("checking Anki health", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Anki is running with AnkiConnect version %d", version)), nil
}

// handleListDecks lists all deck names, sorted for stable output.
func (s *Service) handleListDecks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks, err := s.Client.DeckNames(ctx)
	if err != nil {
		return s.errorResult("listing decks", err), nil
	}
	sorted := append([]string(nil), decks...)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d decks:\n", len(sorted))
	for _, deck := range sorted {
		fmt.Fprintf(&b, "- %s\n", deck)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleListNoteTypes lists all models and the fields of each.
func (s *Service) handleListNoteTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models, err := s.Client.ModelNames(ctx)
	if err != nil {
		return s.errorResult("listing note types", err), nil
	}
	sorted := append([]string(nil), models...)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d note types:\n", len(sorted))
	for _, model := range sorted {
		fields, err := s.Client.ModelFieldNames(ctx, model)
		if err != nil {
			return s.errorResult(fmt.Sprintf("reading fields of %q", model), err), nil
		}
		fmt.Fprintf(&b, "- %s: [%s]\n", model, strings.Join(fields, ", "))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleListTags lists the collection's tag vocabulary.
func (s *Service) handleListTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.Client.GetTags(ctx)
	if err != nil {
		return s.errorResult("listing tags", err), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("No tags in the collection yet"), nil
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return mcp.NewToolResultText(fmt.Sprintf("Found %d tags:\n- %s", len(sorted), strings.Join(sorted, "\n- "))), nil
}

// handleAddFlashcard adds a single Basic note, creating the deck if needed.
// A duplicate is reported as a skipped card, not an error.
func (s *Service) handleAddFlashcard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	front, ok := stringArg(args, "front")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: front"), nil
	}
	back, ok := stringArg(args, "back")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: back"), nil
	}
	tags := stringSliceArg(args, "tags")
	model := stringArgDefault(args, "model", "Basic")

	return s.addNote(ctx, deck, model, map[string]string{"Front": front, "Back": back}, tags, "flashcard")
}

// addNote is the shared ensure-deck-then-add path for single note tools.
func (s *Service) addNote(ctx context.Context, deck, model string, fields map[string]string, tags []string, kind string) (*mcp.CallToolResult, error) {
	if err := s.Client.EnsureDeck(ctx, deck); err != nil {
		return s.errorResult(fmt.Sprintf("creating deck %q", deck), err), nil
	}

	noteID, err := s.Client.AddNote(ctx, anki.Note{
		DeckName:  deck,
		ModelName: model,
		Fields:    fields,
		Tags:      tags,
	})
	if err != nil {
		return s.errorResult(fmt.Sprintf("adding %s", kind), err), nil
	}
	if noteID == nil {
		return mcp.NewToolResultText(fmt.Sprintf("⚠ Duplicate %s not added (already exists in '%s')", kind, deck)), nil
	}

	tagsStr := ""
	if len(tags) > 0 {
		tagsStr = fmt.Sprintf(" (tags: %s)", strings.Join(tags, ", "))
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Added %s to '%s'%s\nNote ID: %d", kind, deck, tagsStr, *noteID)), nil
}

// handleAddFlashcardsBatch adds many notes in one call, reporting how many
// were added and how many were skipped as duplicates.
func (s *Service) handleAddFlashcardsBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	rawCards, ok := args["cards"].([]interface{})
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: cards"), nil
	}
	globalTags := stringSliceArg(args, "tags")
	model := stringArgDefault(args, "model", "Basic")

	if err := s.Client.EnsureDeck(ctx, deck); err != nil {
		return s.errorResult(fmt.Sprintf("creating deck %q", deck), err), nil
	}

	notes := make([]anki.Note, 0, len(rawCards))
	for _, raw := range rawCards {
		card, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		front, _ := stringArg(card, "front")
		back, _ := stringArg(card, "back")
		notes = append(notes, anki.Note{
			DeckName:  deck,
			ModelName: model,
			Fields:    map[string]string{"Front": front, "Back": back},
			Tags:      mergeTags(globalTags, stringSliceArg(card, "tags")),
		})
	}

	noteIDs, err := s.Client.AddNotes(ctx, notes)
	if err != nil {
		return s.errorResult("adding flashcards batch", err), nil
	}

	added, duplicates := 0, 0
	for _, id := range noteIDs {
		if id != nil {
			added++
		} else {
			duplicates++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✓ Batch add to '%s' complete:\n", deck)
	fmt.Fprintf(&b, "  - Added: %d\n", added)
	fmt.Fprintf(&b, "  - Duplicates skipped: %d\n", duplicates)
	fmt.Fprintf(&b, "  - Total: %d", len(notes))
	if len(globalTags) > 0 {
		fmt.Fprintf(&b, "\n  - Tags: %s", strings.Join(globalTags, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// mergeTags unions global and per-card tags, preserving first-seen order.
func mergeTags(global, perCard []string) []string {
	seen := make(map[string]struct{}, len(global)+len(perCard))
	out := make([]string, 0, len(global)+len(perCard))
	for _, t := range append(append([]string{}, global...), perCard...) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// handleAddClozeCard adds a Cloze note; the text must carry {{c1::...}} markup.
func (s *Service) handleAddClozeCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	text, ok := stringArg(args, "text")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: text"), nil
	}
	extra := stringArgDefault(args, "extra", "")
	tags := stringSliceArg(args, "tags")

	result, err := s.addNote(ctx, deck, "Cloze", map[string]string{"Text": text, "Extra": extra}, tags, "cloze card")
	if err != nil || result.IsError {
		return result, err
	}
	return mcp.NewToolResultText(result.Content[0].(mcp.TextContent).Text + "\nText: " + text), nil
}

// handleSearchNotes runs an Anki search query and formats note summaries.
func (s *Service) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	query, ok := stringArg(args, "query")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}
	limit := intArgDefault(args, "limit", 20)

	noteIDs, err := s.Client.FindNotes(ctx, query)
	if err != nil {
		return s.errorResult("searching notes", err), nil
	}
	if len(noteIDs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notes found matching: %s", query)), nil
	}
	if len(noteIDs) > limit {
		noteIDs = noteIDs[:limit]
	}

	notes, err := s.Client.NotesInfo(ctx, noteIDs)
	if err != nil {
		return s.errorResult("reading note details", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes (showing up to %d):\n", len(notes), limit)
	for _, note := range notes {
		fmt.Fprintf(&b, "- ID %d: %s%s\n", note.NoteID, formatNoteFields(note), formatTagSuffix(note.Tags))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// formatNoteFields renders "Name: value" pairs in field order, clipping
// long values so summaries stay readable.
func formatNoteFields(note anki.NoteInfo) string {
	type namedField struct {
		name  string
		field anki.NoteField
	}
	ordered := make([]namedField, 0, len(note.Fields))
	for name, f := range note.Fields {
		ordered = append(ordered, namedField{name, f})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].field.Order != ordered[j].field.Order {
			return ordered[i].field.Order < ordered[j].field.Order
		}
		return ordered[i].name < ordered[j].name
	})

	parts := make([]string, 0, len(ordered))
	for _, nf := range ordered {
		parts = append(parts, fmt.Sprintf("%s: %s", nf.name, clip(nf.field.Value, 50)))
	}
	return strings.Join(parts, " | ")
}

// clip shortens s to at most max runes so summaries stay one line without
// splitting multibyte characters.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func formatTagSuffix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprintf(" [%s]", strings.Join(tags, ", "))
}

// handleFindCards runs a card-level query and formats scheduling summaries.
func (s *Service) handleFindCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	query, ok := stringArg(args, "query")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}
	limit := intArgDefault(args, "limit", 20)

	cardIDs, err := s.Client.FindCards(ctx, query)
	if err != nil {
		return s.errorResult("searching cards", err), nil
	}
	if len(cardIDs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No cards found matching: %s", query)), nil
	}
	if len(cardIDs) > limit {
		cardIDs = cardIDs[:limit]
	}

	cards, err := s.Client.CardsInfo(ctx, cardIDs)
	if err != nil {
		return s.errorResult("reading card details", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d cards (showing up to %d):\n", len(cards), limit)
	for _, card := range cards {
		fmt.Fprintf(&b, "- ID %d [%s]: %q ease=%.2f interval=%dd lapses=%d\n",
			card.CardID, card.DeckName, clip(card.Question, 50), float64(card.Factor)/1000, card.Interval, card.Lapses)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleUpdateNoteFields merges new field values into an existing note.
func (s *Service) handleUpdateNoteFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	noteIDRaw, ok := args["note_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: note_id"), nil
	}
	fields := stringMapArg(args, "fields")
	if len(fields) == 0 {
		return mcp.NewToolResultError("Missing required parameter: fields"), nil
	}

	noteID := int64(noteIDRaw)
	if err := s.Client.UpdateNoteFields(ctx, noteID, fields); err != nil {
		return s.errorResult(fmt.Sprintf("updating note %d", noteID), err), nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return mcp.NewToolResultText(fmt.Sprintf("✓ Updated note %d (fields: %s)", noteID, strings.Join(names, ", "))), nil
}

// handleDeleteNotes deletes notes and, by cascade, their cards.
func (s *Service) handleDeleteNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteIDs := int64SliceArg(request.Params.Arguments, "note_ids")
	if len(noteIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: note_ids"), nil
	}
	if err := s.Client.DeleteNotes(ctx, noteIDs); err != nil {
		return s.errorResult("deleting notes", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Deleted %d notes (their cards were removed too)", len(noteIDs))), nil
}

// handleAddTags adds space-separated tags to the given notes.
func (s *Service) handleAddTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	noteIDs := int64SliceArg(args, "note_ids")
	if len(noteIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: note_ids"), nil
	}
	tags, ok := stringArg(args, "tags")
	if !ok || tags == "" {
		return mcp.NewToolResultError("Missing required parameter: tags"), nil
	}
	if err := s.Client.AddTags(ctx, noteIDs, tags); err != nil {
		return s.errorResult("adding tags", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Added tags '%s' to %d notes", tags, len(noteIDs))), nil
}

// handleRemoveTags removes space-separated tags from the given notes.
func (s *Service) handleRemoveTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	noteIDs := int64SliceArg(args, "note_ids")
	if len(noteIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: note_ids"), nil
	}
	tags, ok := stringArg(args, "tags")
	if !ok || tags == "" {
		return mcp.NewToolResultError("Missing required parameter: tags"), nil
	}
	if err := s.Client.RemoveTags(ctx, noteIDs, tags); err != nil {
		return s.errorResult("removing tags", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Removed tags '%s' from %d notes", tags, len(noteIDs))), nil
}

// handleChangeDeck moves cards into another deck. The owning notes keep
// their original deck; only the cards move.
func (s *Service) handleChangeDeck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	cardIDs := int64SliceArg(args, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	if err := s.Client.ChangeDeck(ctx, cardIDs, deck); err != nil {
		return s.errorResult(fmt.Sprintf("moving cards to %q", deck), err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Moved %d cards to deck '%s'", len(cardIDs), deck)), nil
}

// handleSuspendCards suspends cards so they stop appearing in reviews.
func (s *Service) handleSuspendCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	if err := s.Client.Suspend(ctx, cardIDs); err != nil {
		return s.errorResult("suspending cards", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Suspended %d cards", len(cardIDs))), nil
}

// handleUnsuspendCards returns suspended cards to the review rotation.
func (s *Service) handleUnsuspendCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	if err := s.Client.Unsuspend(ctx, cardIDs); err != nil {
		return s.errorResult("unsuspending cards", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Unsuspended %d cards", len(cardIDs))), nil
}

// handleCardStatus reports the suspended/buried flags per card.
func (s *Service) handleCardStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}

	suspended, err := s.Client.AreSuspended(ctx, cardIDs)
	if err != nil {
		return s.errorResult("checking suspended status", err), nil
	}
	buried, err := s.Client.AreBuried(ctx, cardIDs)
	if err != nil {
		return s.errorResult("checking buried status", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status of %d cards:\n", len(cardIDs))
	for i, id := range cardIDs {
		state := "active"
		if i < len(suspended) && suspended[i] {
			state = "suspended"
		} else if i < len(buried) && buried[i] {
			state = "buried"
		}
		fmt.Fprintf(&b, "- %d: %s\n", id, state)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleForgetCards fully resets the scheduling state of cards.
func (s *Service) handleForgetCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	if err := s.Client.ForgetCards(ctx, cardIDs); err != nil {
		return s.errorResult("forgetting cards", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Reset %d cards to new (interval, ease, and lapses cleared)", len(cardIDs))), nil
}

// handleGetEaseFactors reads ease factors for cards.
func (s *Service) handleGetEaseFactors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	factors, err := s.Client.GetEaseFactors(ctx, cardIDs)
	if err != nil {
		return s.errorResult("reading ease factors", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ease factors for %d cards:\n", len(cardIDs))
	for i, id := range cardIDs {
		if i < len(factors) {
			fmt.Fprintf(&b, "- %d: %d (%.2fx)\n", id, factors[i], float64(factors[i])/1000)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleSetEaseFactors assigns ease factors pairwise; unknown cards are
// reported individually rather than failing the batch.
func (s *Service) handleSetEaseFactors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	cardIDs := int64SliceArg(args, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	factors := intSliceArg(args, "ease_factors")
	if len(factors) != len(cardIDs) {
		return mcp.NewToolResultError("card_ids and ease_factors must have the same length"), nil
	}

	oks, err := s.Client.SetEaseFactors(ctx, cardIDs, factors)
	if err != nil {
		return s.errorResult("setting ease factors", err), nil
	}

	applied, missing := 0, []int64{}
	for i, ok := range oks {
		if ok {
			applied++
		} else if i < len(cardIDs) {
			missing = append(missing, cardIDs[i])
		}
	}

	msg := fmt.Sprintf("✓ Set ease factors on %d of %d cards", applied, len(cardIDs))
	if len(missing) > 0 {
		msg += fmt.Sprintf("\n⚠ Unknown card ids: %v", missing)
	}
	return mcp.NewToolResultText(msg), nil
}

// handleGetIntervals reads current intervals for cards.
func (s *Service) handleGetIntervals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	intervals, err := s.Client.GetIntervals(ctx, cardIDs)
	if err != nil {
		return s.errorResult("reading intervals", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Intervals for %d cards:\n", len(cardIDs))
	for i, id := range cardIDs {
		if i < len(intervals) {
			fmt.Fprintf(&b, "- %d: %d days\n", id, intervals[i])
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleDeckStats summarizes queue counts per deck.
func (s *Service) handleDeckStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks := stringSliceArg(request.Params.Arguments, "decks")
	if len(decks) == 0 {
		return mcp.NewToolResultError("Missing required parameter: decks"), nil
	}
	stats, err := s.Client.GetDeckStats(ctx, decks)
	if err != nil {
		return s.errorResult("reading deck stats", err), nil
	}
	if len(stats) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No stats found for decks: %s", strings.Join(decks, ", "))), nil
	}

	ordered := make([]anki.DeckStat, 0, len(stats))
	for _, stat := range stats {
		ordered = append(ordered, stat)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	var b strings.Builder
	b.WriteString("Deck statistics:\n")
	for _, stat := range ordered {
		fmt.Fprintf(&b, "- %s: %d total (new: %d, learning: %d, review: %d)\n",
			stat.Name, stat.TotalInDeck, stat.NewCount, stat.LearnCount, stat.ReviewCount)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleReviewsToday reports today's review count.
func (s *Service) handleReviewsToday(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.Client.GetNumCardsReviewedToday(ctx)
	if err != nil {
		return s.errorResult("reading today's reviews", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cards reviewed today: %d", n)), nil
}

// handleReviewsByDay reports review counts for the trailing days.
func (s *Service) handleReviewsByDay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := s.Client.GetNumCardsReviewedByDay(ctx)
	if err != nil {
		return s.errorResult("reading review history", err), nil
	}
	if len(days) == 0 {
		return mcp.NewToolResultText("No review history yet"), nil
	}

	var b strings.Builder
	b.WriteString("Reviews by day:\n")
	for _, day := range days {
		label := "today"
		if day[0] == 1 {
			label = "1 day ago"
		} else if day[0] > 1 {
			label = fmt.Sprintf("%d days ago", day[0])
		}
		fmt.Fprintf(&b, "- %s: %d reviews\n", label, day[1])
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleCardReviews reports the revlog history per card.
func (s *Service) handleCardReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardIDs := int64SliceArg(request.Params.Arguments, "card_ids")
	if len(cardIDs) == 0 {
		return mcp.NewToolResultError("Missing required parameter: card_ids"), nil
	}
	reviews, err := s.Client.GetReviewsOfCards(ctx, cardIDs)
	if err != nil {
		return s.errorResult("reading card reviews", err), nil
	}

	gradeNames := map[int]string{1: "again", 2: "hard", 3: "good", 4: "easy"}
	var b strings.Builder
	for _, id := range cardIDs {
		history := reviews[fmt.Sprintf("%d", id)]
		fmt.Fprintf(&b, "Card %d: %d reviews\n", id, len(history))
		for _, r := range history {
			grade := gradeNames[r.Ease]
			if grade == "" {
				grade = fmt.Sprintf("grade %d", r.Ease)
			}
			fmt.Fprintf(&b, "  - %s: interval %d→%d days, ease %d, %.1fs\n",
				grade, r.LastInterval, r.Interval, r.Factor, float64(r.TimeMs)/1000)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// handleSync synchronizes the local collection with AnkiWeb.
func (s *Service) handleSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.Client.Sync(ctx); err != nil {
		return s.errorResult("syncing with AnkiWeb", err), nil
	}
	return mcp.NewToolResultText("✓ Anki collection synchronized with AnkiWeb"), nil
}

// Spanish tools

// handleAddSpanishVocab formats and adds a Spanish vocabulary card.
func (s *Service) handleAddSpanishVocab(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	word, ok := stringArg(args, "spanish")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: spanish"), nil
	}
	english, ok := stringArg(args, "english")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: english"), nil
	}
	example := stringArgDefault(args, "example", "")
	gender := stringArgDefault(args, "gender", "")
	tags := stringSliceArg(args, "tags")
	if len(tags) == 0 {
		tags = spanish.SuggestTags(word, "noun", nil)
	}

	content := spanish.FormatVocabCard(word, english, example, gender)
	return s.addNote(ctx, deck, "Basic",
		map[string]string{"Front": content.Front, "Back": content.Back}, tags, "vocabulary card")
}

// handleAddSpanishVerb formats and adds a Spanish verb card with suggested
// verb-class tags.
func (s *Service) handleAddSpanishVerb(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	infinitive, ok := stringArg(args, "infinitive")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: infinitive"), nil
	}
	english, ok := stringArg(args, "english")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: english"), nil
	}
	notes := stringArgDefault(args, "conjugation_notes", "")
	example := stringArgDefault(args, "example", "")
	tags := spanish.SuggestTags(infinitive, "verb", stringSliceArg(args, "tags"))

	content := spanish.FormatVerbCard(infinitive, english, notes, example)
	return s.addNote(ctx, deck, "Basic",
		map[string]string{"Front": content.Front, "Back": content.Back}, tags, "verb card")
}

// handleAddSpanishSentenceCloze turns a sentence into a cloze card hiding
// the target word.
func (s *Service) handleAddSpanishSentenceCloze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	sentence, ok := stringArg(args, "sentence")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: sentence"), nil
	}
	target, ok := stringArg(args, "target_word")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: target_word"), nil
	}
	english := stringArgDefault(args, "english", "")
	tags := stringSliceArg(args, "tags")

	text := spanish.FormatSentenceCloze(sentence, target)
	if !strings.Contains(text, "{{c1::") {
		return mcp.NewToolResultError(fmt.Sprintf("Target word %q does not occur in the sentence", target)), nil
	}

	result, err := s.addNote(ctx, deck, "Cloze", map[string]string{"Text": text, "Extra": english}, tags, "cloze card")
	if err != nil || result.IsError {
		return result, err
	}
	return mcp.NewToolResultText(result.Content[0].(mcp.TextContent).Text + "\nText: " + text), nil
}

// handleSuggestSpanishTags derives tags from a word's shape without
// touching the collection.
func (s *Service) handleSuggestSpanishTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	word, ok := stringArg(args, "word")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: word"), nil
	}
	pos := stringArgDefault(args, "pos", "")
	extra := stringSliceArg(args, "extra_tags")

	tags := spanish.SuggestTags(word, pos, extra)
	if len(tags) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No tag suggestions for %q", word)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Suggested tags for %q: %s", word, strings.Join(tags, ", "))), nil
}

// handleExportDeck writes every card of a deck into an .apkg package file.
func (s *Service) handleExportDeck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	deck, ok := stringArg(args, "deck")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deck"), nil
	}
	outputPath, ok := stringArg(args, "output_path")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: output_path"), nil
	}

	cardIDs, err := s.Client.FindCards(ctx, fmt.Sprintf("deck:%q", deck))
	if err != nil {
		return s.errorResult(fmt.Sprintf("finding cards in %q", deck), err), nil
	}
	if len(cardIDs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Deck '%s' has no cards to export", deck)), nil
	}

	infos, err := s.Client.CardsInfo(ctx, cardIDs)
	if err != nil {
		return s.errorResult("reading card details", err), nil
	}

	cards := make([]apkg.Card, 0, len(infos))
	for _, info := range infos {
		cards = append(cards, apkg.Card{Front: info.Question, Back: info.Answer})
	}

	// Stage in a temp file so a failed export never leaves a truncated
	// package at the requested path.
	out, err := os.CreateTemp(filepath.Dir(outputPath), ".apkg-*")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Cannot create %s: %v", outputPath, err)), nil
	}
	tmpPath := out.Name()

	if err := apkg.NewExporter(deck).Export(cards, out); err != nil {
		out.Close()
		os.Remove(tmpPath)
		s.Logger.Error("apkg export failed", zap.String("deck", deck), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Export failed: %v", err)), nil
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return mcp.NewToolResultError(fmt.Sprintf("Export failed: %v", err)), nil
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return mcp.NewToolResultError(fmt.Sprintf("Cannot create %s: %v", outputPath, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("✓ Exported %d cards from '%s' to %s", len(cards), deck, outputPath)), nil
}
