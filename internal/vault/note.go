package vault

import (
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
)

const embedTextMaxChars = 4000

// Frontmatter holds the recognized note frontmatter fields (spec §3).
type Frontmatter struct {
	Description  string `yaml:"description"`
	Type         string `yaml:"type"`
	Confidence   string `yaml:"confidence"`
	Created      string `yaml:"created"`
	Relation     string `yaml:"relation"`
	ParentNote   string `yaml:"parent_note"`
	SupersededBy string `yaml:"superseded_by"`
	ForgetAfter  string `yaml:"forget_after"`
	Stale        bool   `yaml:"stale"`
	StaleSince   string `yaml:"stale_since"`
}

// Note is a fully parsed vault note.
type Note struct {
	NoteID    string
	Path      string
	Meta      Frontmatter
	Body      string // body with frontmatter stripped
	EmbedText string
	Raw       string // full file content, frontmatter included
}

// ParseNoteContent parses a note's raw content (frontmatter + body) into its
// structured form, generalizing the teacher's ParseNote helper from a
// title/tags/domain schema to this project's note schema.
func ParseNoteContent(noteID, raw string) Note {
	var meta Frontmatter
	body, err := frontmatter.Parse(strings.NewReader(raw), &meta)
	if err != nil {
		return Note{NoteID: noteID, Body: raw, Raw: raw, EmbedText: truncate(raw, embedTextMaxChars)}
	}

	bodyStr := string(body)
	embed := meta.Description + "\n\n" + bodyStr

	return Note{
		NoteID:    noteID,
		Meta:      meta,
		Body:      bodyStr,
		Raw:       raw,
		EmbedText: truncate(embed, embedTextMaxChars),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

const descriptionMaxChars = 150

// knownTypes is the enumerated type set from spec §3; anything else falls
// back to "context" rather than writing an unrecognized type through.
var knownTypes = map[string]bool{
	"decision": true, "result": true, "method": true, "concept": true,
	"context": true, "argument": true, "module": true, "preference": true,
}

// BuildFrontmatter renders the initial frontmatter block for a new or
// replacement note (spec §3 "description"/"type"/"confidence"/"created"),
// defaulting an unrecognized type to "context" and an unrecognized
// confidence to "experimental" rather than writing through whatever the
// extractor produced.
func BuildFrontmatter(description, noteType, confidence, created string) string {
	description = strings.Join(strings.Fields(description), " ")
	description = truncate(description, descriptionMaxChars)

	if !knownTypes[noteType] {
		noteType = "context"
	}
	if confidence != "confirmed" {
		confidence = "experimental"
	}

	return fmt.Sprintf("---\ndescription: %s\ntype: %s\nconfidence: %s\ncreated: %s\n---\n\n",
		description, noteType, confidence, created)
}
