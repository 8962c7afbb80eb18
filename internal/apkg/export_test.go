package apkg

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func exportToZip(t *testing.T, deck string, cards []Card) *zip.Reader {
	t.Helper()

	var buf bytes.Buffer
	if err := NewExporter(deck).Export(cards, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("exported package is not a zip: %v", err)
	}
	return zr
}

func readEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return buf.Bytes()
	}
	t.Fatalf("package has no %s entry", name)
	return nil
}

func TestExportPackageLayout(t *testing.T) {
	zr := exportToZip(t, "Spanish", []Card{{Front: "hola", Back: "hello"}})

	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}

	media := readEntry(t, zr, "media")
	if string(media) != "{}" {
		t.Errorf("media manifest = %q, want empty JSON object", media)
	}

	collection := readEntry(t, zr, "collection.anki2")
	if !bytes.HasPrefix(collection, []byte("SQLite format 3\x00")) {
		t.Error("collection.anki2 is not a SQLite database")
	}
}

func TestExportCollectionRows(t *testing.T) {
	cards := []Card{
		{Front: "uno", Back: "one", Tags: []string{"number"}},
		{Front: "dos", Back: "two"},
		{Front: "tres", Back: "three"},
	}
	zr := exportToZip(t, "Numbers", cards)

	// Extract the database and query it back.
	dbBytes := readEntry(t, zr, "collection.anki2")
	dbPath := filepath.Join(t.TempDir(), "collection.anki2")
	if err := os.WriteFile(dbPath, dbBytes, 0644); err != nil {
		t.Fatalf("write db: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var noteCount, cardCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&noteCount); err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM cards").Scan(&cardCount); err != nil {
		t.Fatalf("count cards: %v", err)
	}
	if noteCount != len(cards) || cardCount != len(cards) {
		t.Errorf("notes/cards = %d/%d, want %d/%d", noteCount, cardCount, len(cards), len(cards))
	}

	// Fields are joined with the 0x1f separator.
	var flds string
	if err := db.QueryRow("SELECT flds FROM notes ORDER BY id LIMIT 1").Scan(&flds); err != nil {
		t.Fatalf("read flds: %v", err)
	}
	parts := strings.Split(flds, "\x1f")
	if len(parts) != 2 || parts[0] != "uno" || parts[1] != "one" {
		t.Errorf("flds = %q, want uno<1f>one", flds)
	}

	// Tags carry Anki's surrounding spaces.
	var tags string
	if err := db.QueryRow("SELECT tags FROM notes ORDER BY id LIMIT 1").Scan(&tags); err != nil {
		t.Fatalf("read tags: %v", err)
	}
	if !strings.Contains(tags, "number") {
		t.Errorf("tags = %q, want to contain number", tags)
	}

	// The col row names the deck.
	var decks string
	if err := db.QueryRow("SELECT decks FROM col").Scan(&decks); err != nil {
		t.Fatalf("read decks: %v", err)
	}
	if !strings.Contains(decks, `"Numbers"`) {
		t.Errorf("col.decks = %q, want to name the Numbers deck", decks)
	}
}

func TestExportEmptyDeckName(t *testing.T) {
	zr := exportToZip(t, "", nil)

	dbBytes := readEntry(t, zr, "collection.anki2")
	dbPath := filepath.Join(t.TempDir(), "collection.anki2")
	if err := os.WriteFile(dbPath, dbBytes, 0644); err != nil {
		t.Fatalf("write db: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var decks string
	if err := db.QueryRow("SELECT decks FROM col").Scan(&decks); err != nil {
		t.Fatalf("read decks: %v", err)
	}
	if !strings.Contains(decks, `"Default"`) {
		t.Errorf("col.decks = %q, want the Default fallback deck", decks)
	}
}
