// Package apkg writes Anki package files: a zip holding a collection.anki2
// SQLite database and a media manifest, importable by desktop Anki.
package apkg

import (
	"archive/zip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Card is one front/back pair to include in the exported deck.
type Card struct {
	Front string
	Back  string
	Tags  []string
}

// Exporter writes .apkg packages for a single named deck.
type Exporter struct {
	deckName string
}

// NewExporter creates an exporter for the given deck name.
func NewExporter(deckName string) *Exporter {
	if deckName == "" {
		deckName = "Default"
	}
	return &Exporter{deckName: deckName}
}

// Export builds the package and writes it to w.
func (e *Exporter) Export(cards []Card, w io.Writer) error {
	tmpDir, err := os.MkdirTemp("", "apkg-export-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "collection.anki2")
	if err := e.writeCollection(dbPath, cards); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// No media support; the manifest is an empty JSON object.
	mediaPath := filepath.Join(tmpDir, "media")
	if err := os.WriteFile(mediaPath, []byte("{}"), 0644); err != nil {
		return fmt.Errorf("create media manifest: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, name := range []string{"collection.anki2", "media"} {
		if err := addFile(zw, filepath.Join(tmpDir, name), name); err != nil {
			zw.Close()
			return fmt.Errorf("add %s to package: %w", name, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

const schema = `
CREATE TABLE col (
	id INTEGER PRIMARY KEY,
	crt INTEGER NOT NULL,
	mod INTEGER NOT NULL,
	scm INTEGER NOT NULL,
	ver INTEGER NOT NULL,
	dty INTEGER NOT NULL,
	usn INTEGER NOT NULL,
	ls INTEGER NOT NULL,
	conf TEXT NOT NULL,
	models TEXT NOT NULL,
	decks TEXT NOT NULL,
	dconf TEXT NOT NULL,
	tags TEXT NOT NULL
);

CREATE TABLE notes (
	id INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	mid INTEGER NOT NULL,
	usn INTEGER NOT NULL,
	mod INTEGER NOT NULL,
	tags TEXT NOT NULL,
	flds TEXT NOT NULL,
	sfld INTEGER NOT NULL,
	csum INTEGER NOT NULL,
	flags INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE cards (
	id INTEGER PRIMARY KEY,
	nid INTEGER NOT NULL,
	did INTEGER NOT NULL,
	ord INTEGER NOT NULL,
	mod INTEGER NOT NULL,
	usn INTEGER NOT NULL,
	type INTEGER NOT NULL,
	queue INTEGER NOT NULL,
	due INTEGER NOT NULL,
	ivl INTEGER NOT NULL,
	factor INTEGER NOT NULL,
	reps INTEGER NOT NULL,
	lapses INTEGER NOT NULL,
	left INTEGER NOT NULL,
	odue INTEGER NOT NULL,
	odid INTEGER NOT NULL,
	flags INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE revlog (
	id INTEGER PRIMARY KEY,
	cid INTEGER NOT NULL,
	usn INTEGER NOT NULL,
	ease INTEGER NOT NULL,
	ivl INTEGER NOT NULL,
	lastIvl INTEGER NOT NULL,
	factor INTEGER NOT NULL,
	time INTEGER NOT NULL,
	type INTEGER NOT NULL
);

CREATE INDEX ix_cards_nid ON cards (nid);
CREATE INDEX ix_cards_sched ON cards (did, queue, due);
CREATE INDEX ix_revlog_cid ON revlog (cid);
CREATE INDEX ix_notes_csum ON notes (csum);
`

func (e *Exporter) writeCollection(dbPath string, cards []Card) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	now := time.Now().UnixMilli()
	const deckID, modelID = int64(1), int64(1)

	conf, _ := json.Marshal(map[string]any{
		"curModel":    modelID,
		"activeDecks": []int64{deckID},
	})
	models, _ := json.Marshal(map[string]any{
		fmt.Sprintf("%d", modelID): basicModel(modelID, deckID, now),
	})
	decks, _ := json.Marshal(map[string]any{
		fmt.Sprintf("%d", deckID): map[string]any{
			"id":        deckID,
			"name":      e.deckName,
			"desc":      "",
			"mod":       now,
			"usn":       -1,
			"collapsed": false,
			"dyn":       0,
			"newToday":  []int{0, 0},
			"revToday":  []int{0, 0},
			"lrnToday":  []int{0, 0},
			"timeToday": []int{0, 0},
			"conf":      1,
		},
	})
	dconf, _ := json.Marshal(map[string]any{
		"1": map[string]any{
			"id":       1,
			"mod":      now,
			"usn":      -1,
			"maxTaken": 60,
			"autoplay": true,
			"timer":    0,
			"replayq":  true,
			"new": map[string]any{
				"delays":        []float64{1, 10},
				"ints":          []int{1, 4, 7},
				"initialFactor": 2500,
				"order":         1,
				"perDay":        20,
			},
			"rev": map[string]any{
				"perDay":   200,
				"fuzz":     0.05,
				"minSpace": 1,
				"ivlFct":   1,
				"maxIvl":   36500,
			},
			"lapse": map[string]any{
				"delays":      []float64{10},
				"mult":        0,
				"minInt":      1,
				"leechFails":  8,
				"leechAction": 0,
			},
		},
	})

	_, err = db.Exec(`
		INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		1, now/1000, now, now, 11, 0, 0, 0, string(conf), string(models), string(decks), string(dconf), "{}")
	if err != nil {
		return fmt.Errorf("insert collection row: %w", err)
	}

	for i, card := range cards {
		if err := insertCard(db, int64(i), card, modelID, deckID, now); err != nil {
			return fmt.Errorf("insert card %d: %w", i, err)
		}
	}
	return nil
}

func basicModel(modelID, deckID, now int64) map[string]any {
	return map[string]any{
		"id":    modelID,
		"name":  "Basic",
		"type":  0,
		"mod":   now,
		"usn":   -1,
		"sortf": 0,
		"did":   deckID,
		"tmpls": []map[string]any{
			{
				"name":  "Card 1",
				"ord":   0,
				"qfmt":  "{{Front}}",
				"afmt":  "{{FrontSide}}<hr id=\"answer\">{{Back}}",
				"bqfmt": "",
				"bafmt": "",
				"did":   nil,
			},
		},
		"flds": []map[string]any{
			{"name": "Front", "ord": 0, "sticky": false, "rtl": false, "font": "Arial", "size": 20, "media": []string{}},
			{"name": "Back", "ord": 1, "sticky": false, "rtl": false, "font": "Arial", "size": 20, "media": []string{}},
		},
		"css":       ".card { font-family: arial; font-size: 20px; text-align: center; color: black; background-color: white; }",
		"latexPre":  "\\documentclass[12pt]{article}\n\\usepackage[utf8]{inputenc}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\begin{document}",
		"latexPost": "\\end{document}",
		"req":       []any{[]any{0, "all", []int{0}}},
		"tags":      []string{},
	}
}

func insertCard(db *sql.DB, idx int64, card Card, modelID, deckID, now int64) error {
	noteID := now + idx*1000
	cardID := noteID + 1

	// \x1f separates field values inside a single TEXT column.
	fields := card.Front + "\x1f" + card.Back

	csum := int64(0)
	for _, c := range fields {
		csum = (csum*31 + int64(c)) & 0xFFFFFFFF
	}

	tags := ""
	for _, t := range card.Tags {
		tags += " " + t
	}
	if tags != "" {
		tags += " "
	}

	_, err := db.Exec(`
		INSERT INTO notes (id, guid, mid, usn, mod, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		noteID, fmt.Sprintf("exp-%d", noteID), modelID, -1, now, tags, fields, card.Front, csum, 0, "")
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cardID, noteID, deckID, 0, now, -1, 0, 0, idx+1, 0, 2500, 0, 0, 0, 0, 0, 0, "")
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}
