// Package logx appends dated, newline-delimited lines to the activity log
// file read by downstream monitoring (spec.md §6): one line per event,
// prefixed with "[YYYY-MM-DD] ".
package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends lines to a single log file, opening it in append mode for
// each line under a mutex, matching the teacher's append-only file idiom
// (internal/hooks/verbose_logging.go's writeVerboseLog).
type Logger struct {
	path string
	mu   sync.Mutex
}

// New returns a Logger writing to path. The file and its parent directory
// are created lazily on first write.
func New(path string) *Logger {
	return &Logger{path: path}
}

// Printf appends "[YYYY-MM-DD] <formatted msg>\n" to the log file.
// Failures to write are reported to stderr and otherwise swallowed — logging
// must never block or fail the operation it's recording.
func (l *Logger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02"), fmt.Sprintf(format, args...))

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "memo-rize: warning: cannot create log dir: %v\n", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memo-rize: warning: cannot open log file: %v\n", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "memo-rize: warning: cannot write log line: %v\n", err)
	}
}

// Retrieve logs a retrieval hook invocation (original vocabulary: "RETRIEVE").
func (l *Logger) Retrieve(resultCount int, topScore float64) {
	l.Printf("RETRIEVE results=%d top_score=%.3f", resultCount, topScore)
}

// RetrieveError logs a failed retrieval (original vocabulary: "RETRIEVE error").
func (l *Logger) RetrieveError(err error) {
	l.Printf("RETRIEVE error: %v", err)
}

// ProcessingSession logs the start of extraction for a queued session.
func (l *Logger) ProcessingSession(sessionID string) {
	l.Printf("PROCESSING session %s", sessionID)
}

// FactsExtracted logs the fact count produced by an extraction pass.
func (l *Logger) FactsExtracted(n int) {
	l.Printf("Facts extracted: %d", n)
}

// Dedup logs a semantic-dedup merge decision.
func (l *Logger) Dedup(noteID string, similarity float64) {
	l.Printf("DEDUP: merged into %s (similarity=%.3f)", noteID, similarity)
}

// GraphIncremental logs an incremental graph cache patch.
func (l *Logger) GraphIncremental(noteID string, edges int) {
	l.Printf("GRAPH incremental: %s (%d edges)", noteID, edges)
}

// EmbedError logs an embedding-provider failure.
func (l *Logger) EmbedError(err error) {
	l.Printf("EMBED error: %v", err)
}
