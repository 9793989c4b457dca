// Package extraction implements the Extraction Engine (spec §4.6):
// transcript cleanup, pre-query, LLM-driven fact extraction, validation,
// semantic dedup, and the write-apply dispatch into the Vault Store, Vector
// Index, and Graph Cache.
package extraction

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// maxConversationChars bounds the tail of the conversation kept for the
// extraction prompt (spec §4.6 step 2: "fit under ~40 000 chars").
const maxConversationChars = 40000

// maxMessageChars caps any single message before it enters the tail window
// (spec §4.6 step 2).
const maxMessageChars = 2000

// Turn is one user/assistant message surviving transcript cleanup.
type Turn struct {
	Role string
	Text string
}

type transcriptEvent struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadTranscriptTail streams a JSONL transcript, keeps only non-empty
// user/assistant text turns (tool-use/tool-result blocks are dropped), caps
// each message and its fenced code blocks, and returns the chronological
// tail that fits under maxConversationChars (spec §4.6 step 2).
func ReadTranscriptTail(path string, maxCodeBlockChars int) ([]Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	defer f.Close()

	var all []Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev transcriptEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // malformed line: skip rather than fail the whole tail
		}
		if ev.Type != "user" && ev.Type != "assistant" {
			continue
		}
		text := strings.TrimSpace(extractText(ev.Message.Content))
		if text == "" {
			continue
		}
		text = truncateCodeBlocks(text, maxCodeBlockChars)
		if len(text) > maxMessageChars {
			text = text[:maxMessageChars]
		}
		all = append(all, Turn{Role: ev.Type, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript %s: %w", path, err)
	}

	return tail(all, maxConversationChars), nil
}

// extractText accepts both a bare string content field and the block-array
// form, keeping only "text" blocks and dropping tool_use/tool_result blocks.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var fencedBlockRe = regexp.MustCompile("(?s)```.*?```")

// truncateCodeBlocks truncates any fenced code block over maxChars, leaving
// a "[truncated N chars]" marker in its place (spec §4.6 step 2).
func truncateCodeBlocks(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	return fencedBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		inner := strings.TrimSuffix(strings.TrimPrefix(block, "```"), "```")
		if len(inner) <= maxChars {
			return block
		}
		truncated := len(inner) - maxChars
		return "```" + inner[:maxChars] + fmt.Sprintf("\n[truncated %d chars]\n", truncated) + "```"
	})
}

// tail walks turns from the end, accumulating until the running total meets
// maxChars, then returns the kept turns in chronological order (spec §4.6
// step 2: "taken from the end, then re-ordered chronologically").
func tail(turns []Turn, maxChars int) []Turn {
	var kept []Turn
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		total += len(turns[i].Text)
		kept = append(kept, turns[i])
		if total >= maxChars {
			break
		}
	}
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

// RenderTurns flattens turns into plain "role: text" conversation text, used
// both for pre-query embedding and for the source-chunk excerpt.
func RenderTurns(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n\n", t.Role, t.Text)
	}
	return b.String()
}
