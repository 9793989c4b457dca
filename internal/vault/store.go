// Package vault implements the Vault Store: note parsing, atomic writes,
// idempotent frontmatter injection, wikilink rewriting, and the NEW/UPDATES/
// EXTENDS relation semantics that drive every note mutation.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store roots all vault operations at a notes directory.
type Store struct {
	NotesDir string
}

// New returns a Store rooted at notesDir.
func New(notesDir string) *Store {
	return &Store{NotesDir: notesDir}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// ListNotes returns every indexable note_id under NotesDir, ordered by slug.
// Files named with a leading "." or "_" (and the _sources/_archived
// subdirectories they imply) are invisible to indexing and retrieval.
func (s *Store) ListNotes() ([]string, error) {
	entries, err := os.ReadDir(s.NotesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list vault notes: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isHidden(name) || !strings.HasSuffix(name, ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Path returns the on-disk path for a note id.
func (s *Store) Path(noteID string) string {
	return filepath.Join(s.NotesDir, noteID+".md")
}

// Exists reports whether a note file exists.
func (s *Store) Exists(noteID string) bool {
	_, err := os.Stat(s.Path(noteID))
	return err == nil
}

// Parse reads and parses a note from disk by id.
func (s *Store) Parse(noteID string) (Note, error) {
	raw, err := os.ReadFile(s.Path(noteID))
	if err != nil {
		return Note{}, fmt.Errorf("read note %s: %w", noteID, err)
	}
	n := ParseNoteContent(noteID, string(raw))
	n.Path = s.Path(noteID)
	return n, nil
}

// ParseAll parses every indexable note in the vault.
func (s *Store) ParseAll() ([]Note, error) {
	ids, err := s.ListNotes()
	if err != nil {
		return nil, err
	}
	notes := make([]Note, 0, len(ids))
	for _, id := range ids {
		n, err := s.Parse(id)
		if err != nil {
			continue // unreadable note: skip, don't fail the whole walk
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// WriteAtomic writes data to path via a sibling tempfile + rename, so
// readers always observe either the old or the new bytes, never a mix. On
// any failure the tempfile is removed before the error is returned.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create tempfile: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write tempfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close tempfile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename tempfile to %s: %w", path, err)
	}
	return nil
}

// AddSupersededBy idempotently injects "superseded_by: <successorID>" into
// the note at noteID and writes it back atomically.
func (s *Store) AddSupersededBy(noteID, successorID string) error {
	raw, err := os.ReadFile(s.Path(noteID))
	if err != nil {
		return fmt.Errorf("read note %s: %w", noteID, err)
	}
	updated := AddSupersededByContent(string(raw), successorID)
	return WriteAtomic(s.Path(noteID), []byte(updated))
}

// Relation describes how a newly-extracted fact relates to the vault.
type Relation struct {
	Kind   string // "NEW", "UPDATES", "EXTENDS"
	Target string // note_id, empty for NEW
}

// ParseRelation parses a relation label of the form "NEW", "UPDATES:<id>",
// or "EXTENDS:<id>".
func ParseRelation(label string) Relation {
	if idx := strings.IndexByte(label, ':'); idx >= 0 {
		return Relation{Kind: strings.ToUpper(label[:idx]), Target: label[idx+1:]}
	}
	return Relation{Kind: strings.ToUpper(label)}
}

// ApplyRelation applies relation to content under noteID, mutating exactly
// one file. A missing UPDATES/EXTENDS target demotes to NEW (spec §4.1, §7).
func (s *Store) ApplyRelation(noteID, content string, rel Relation) error {
	switch rel.Kind {
	case "UPDATES":
		if rel.Target != "" && s.Exists(rel.Target) {
			return s.applyUpdates(noteID, rel.Target, content)
		}
		return s.applyNew(noteID, content)
	case "EXTENDS":
		if rel.Target != "" && s.Exists(rel.Target) {
			return s.applyExtends(noteID, rel.Target, content)
		}
		return s.applyNew(noteID, content)
	default:
		return s.applyNew(noteID, content)
	}
}

func (s *Store) applyNew(noteID, content string) error {
	content = InjectFrontmatterField(content, "relation", "new")
	return WriteAtomic(s.Path(noteID), []byte(content))
}

func (s *Store) applyUpdates(noteID, target, content string) error {
	content = InjectFrontmatterField(content, "relation", "updates")
	content = InjectFrontmatterField(content, "parent_note", target)
	content = InjectFrontmatterField(content, "superseded_by", noteID)
	// The target file is overwritten in place; no new file is created.
	return WriteAtomic(s.Path(target), []byte(content))
}

func (s *Store) applyExtends(noteID, target, content string) error {
	raw, err := os.ReadFile(s.Path(target))
	if err != nil {
		return fmt.Errorf("read extend target %s: %w", target, err)
	}
	today := time.Now().Format("2006-01-02")
	appended := fmt.Sprintf("%s\n---\n*Auto-extension %s (from: %s):*\n\n%s", string(raw), today, noteID, content)
	return WriteAtomic(s.Path(target), []byte(appended))
}
