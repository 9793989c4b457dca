package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tofunori/memo-rize/internal/queue"
)

type enqueueRequest struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
}

// enqueueCmd implements the Enqueuer CLI surface (spec §6): reads a hook
// payload from stdin and writes a ticket unless the session's turn count
// is below MIN_TURNS, or below MIN_NEW_TURNS since it was last processed.
func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue",
		Short: "Read a session payload from stdin and enqueue an extraction ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()
			return runEnqueue(d, cmd.InOrStdin())
		},
	}
}

func runEnqueue(d *deps, stdin io.Reader) error {
	var req enqueueRequest
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return fmt.Errorf("decode stdin payload: %w", err)
	}
	if req.SessionID == "" || req.TranscriptPath == "" {
		return nil // malformed payload: silent skip
	}

	turnCount, err := countUserTurns(req.TranscriptPath)
	if err != nil {
		d.log.Printf("ENQUEUE error reading transcript for %s: %v", req.SessionID, err)
		return nil
	}

	lastProcessed, wasProcessed, err := d.queue.LastProcessedTurnCount(req.SessionID)
	if err != nil {
		d.log.Printf("ENQUEUE error checking processed history for %s: %v", req.SessionID, err)
	}

	if !queue.ShouldEnqueue(turnCount, d.cfg.Extract.MinTurns, d.cfg.Extract.MinNewTurns, lastProcessed, wasProcessed) {
		return nil // below MIN_TURNS, or not enough new turns since last run
	}

	t := queue.Ticket{
		SessionID:      req.SessionID,
		TranscriptPath: req.TranscriptPath,
		Cwd:            req.Cwd,
		TurnCount:      turnCount,
	}
	if err := d.queue.Enqueue(t); err != nil {
		return fmt.Errorf("enqueue ticket: %w", err)
	}
	d.log.Printf("ENQUEUE ticket written for session %s (turn_count=%d)", req.SessionID, turnCount)
	return nil
}

// countUserTurns counts "type":"user" lines in a JSONL transcript, the same
// per-line shape ReadTranscriptTail parses, without capping or tailing —
// the enqueuer needs the session's total turn count, not a prompt-ready tail.
func countUserTurns(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open transcript %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type == "user" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan transcript %s: %w", path, err)
	}
	return count, nil
}
