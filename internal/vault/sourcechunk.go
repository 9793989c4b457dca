package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SourceChunks manages the per-note transcript excerpts stored 1:1 with
// notes (spec §3 "Source chunk").
type SourceChunks struct {
	Dir     string
	MaxChars int
}

// NewSourceChunks returns a SourceChunks store rooted at dir.
func NewSourceChunks(dir string, maxChars int) *SourceChunks {
	return &SourceChunks{Dir: dir, MaxChars: maxChars}
}

func (sc *SourceChunks) path(noteID string) string {
	return filepath.Join(sc.Dir, noteID+".md")
}

// Save writes (NEW/UPDATES) or appends (EXTENDS) a source chunk for noteID.
func (sc *SourceChunks) Save(noteID, excerpt string, rel Relation) error {
	if len(excerpt) > sc.MaxChars {
		excerpt = excerpt[len(excerpt)-sc.MaxChars:]
	}
	today := time.Now().Format("2006-01-02")

	if rel.Kind == "EXTENDS" {
		if existing, err := os.ReadFile(sc.path(noteID)); err == nil {
			appended := fmt.Sprintf("%s\n---\n*captured %s*\n\n%s", string(existing), today, excerpt)
			return WriteAtomic(sc.path(noteID), []byte(appended))
		}
	}

	fm := fmt.Sprintf("---\nsource_for: %s\ncaptured: %s\nrelation: %s\n---\n\n%s",
		noteID, today, relationLabel(rel), excerpt)
	return WriteAtomic(sc.path(noteID), []byte(fm))
}

// Read returns the body (frontmatter stripped) of a note's source chunk,
// truncated to maxChars.
func (sc *SourceChunks) Read(noteID string, maxChars int) (string, error) {
	raw, err := os.ReadFile(sc.path(noteID))
	if err != nil {
		return "", err
	}
	n := ParseNoteContent(noteID, string(raw))
	body := n.Body
	if len(body) > maxChars {
		body = body[:maxChars]
	}
	return body, nil
}

func relationLabel(rel Relation) string {
	if rel.Target == "" {
		return rel.Kind
	}
	return rel.Kind + ":" + rel.Target
}
