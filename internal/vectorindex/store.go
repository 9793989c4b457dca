// Package vectorindex implements the Vector Index (spec §4.2): a cosine-space
// vector store over note payloads, backed by sqlite-vec the way the teacher's
// internal/store/db.go embeds it in SQLite via the vec0 virtual table
// (QDRANT_PATH/vectors.db is this package's on-disk file, spec §6). Point ids
// are deterministic UUIDv5(note_id) per spec §3, generalizing the teacher's
// autoincrement note_id keying to a stable, content-addressed key so
// re-upserting the same note never creates a duplicate point.
package vectorindex

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tofunori/memo-rize/internal/embedding"
)

func init() {
	sqlite_vec.Auto()
}

// noteNamespace is the fixed UUIDv5 namespace (DNS) for deriving point ids
// from note_ids, per spec §3 "Vector point".
var noteNamespace = uuid.NameSpaceDNS

// PointID returns the deterministic UUIDv5 point id for a note_id.
func PointID(noteID string) string {
	return uuid.NewSHA1(noteNamespace, []byte(noteID)).String()
}

// Payload mirrors a note's frontmatter plus the two retrieval-maintained
// fields (spec §3 "Vector point").
type Payload struct {
	NoteID        string
	Description   string
	Type          string
	Confidence    string
	Created       string
	LastRetrieved string
	UpdatedAt     string
}

// Scored pairs a payload with a cosine similarity score.
type Scored struct {
	Payload Payload
	Score   float64
}

// NoteInput is what UpsertBatch needs from a vault note to embed and store it.
type NoteInput struct {
	NoteID      string
	EmbedText   string
	Description string
	Type        string
	Confidence  string
	Created     string
}

// Store is the cosine-space vector store, backed by a single sqlite-vec
// database file.
type Store struct {
	mu       sync.Mutex
	conn     *sql.DB
	dim      int
	embedder embedding.Provider
}

// Open opens or creates the vector store at path, backed by embedder for
// document/query embedding. dim must match embedder.Dimensions() for any
// embedder actually used to upsert.
func Open(path string, dim int, embedder embedding.Provider) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	s := &Store{conn: conn, dim: dim, embedder: embedder}
	if err := s.EnsureCollection(dim); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.conn.Close() }

// EnsureCollection idempotently creates the note_points virtual table and
// its metadata sidecar table at the given dimensionality (spec §4.2
// "ensure_collection").
func (s *Store) EnsureCollection(dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS note_vectors USING vec0(
			point_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, dim)); err != nil {
		return fmt.Errorf("create note_vectors: %w", err)
	}

	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS note_payloads (
		point_id TEXT PRIMARY KEY,
		note_id TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		confidence TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL DEFAULT '',
		last_retrieved TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return fmt.Errorf("create note_payloads: %w", err)
	}
	_, err := s.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_note_payloads_note_id ON note_payloads(note_id)`)
	return err
}

// UpsertBatch embeds notes in batches of at most batchSize and upserts each
// into the store, setting last_retrieved := created and updated_at := today
// (spec §4.2 "upsert_batch"). Returns the first embedding error encountered;
// callers treat this as a degrade-and-log condition (spec §7), not fatal.
func (s *Store) UpsertBatch(notes []NoteInput, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(notes)
	}
	today := time.Now().Format("2006-01-02")

	for start := 0; start < len(notes); start += batchSize {
		end := start + batchSize
		if end > len(notes) {
			end = len(notes)
		}
		for _, n := range notes[start:end] {
			vec, err := s.embedder.GetDocumentEmbedding(n.EmbedText)
			if err != nil {
				return fmt.Errorf("embed note %s: %w", n.NoteID, err)
			}
			if err := s.upsertOne(n, vec, today); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) upsertOne(n NoteInput, vec []float32, today string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pointID := PointID(n.NoteID)
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serialize embedding for %s: %w", n.NoteID, err)
	}

	if _, err := s.conn.Exec(`DELETE FROM note_vectors WHERE point_id = ?`, pointID); err != nil {
		return fmt.Errorf("clear stale vector for %s: %w", n.NoteID, err)
	}
	if _, err := s.conn.Exec(`INSERT INTO note_vectors (point_id, embedding) VALUES (?, ?)`, pointID, vecData); err != nil {
		return fmt.Errorf("upsert vector for %s: %w", n.NoteID, err)
	}

	lastRetrieved := n.Created
	_, err = s.conn.Exec(`
		INSERT INTO note_payloads (point_id, note_id, description, type, confidence, created, last_retrieved, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(point_id) DO UPDATE SET
			note_id = excluded.note_id,
			description = excluded.description,
			type = excluded.type,
			confidence = excluded.confidence,
			created = excluded.created,
			updated_at = excluded.updated_at`,
		pointID, n.NoteID, n.Description, n.Type, n.Confidence, n.Created, lastRetrieved, today,
	)
	if err != nil {
		return fmt.Errorf("upsert payload for %s: %w", n.NoteID, err)
	}
	return nil
}

// DeletePoint removes a note's vector and payload (used by the reflector's
// TTL expiry, spec §4.7).
func (s *Store) DeletePoint(noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pointID := PointID(noteID)
	if _, err := s.conn.Exec(`DELETE FROM note_vectors WHERE point_id = ?`, pointID); err != nil {
		return fmt.Errorf("delete vector for %s: %w", noteID, err)
	}
	_, err := s.conn.Exec(`DELETE FROM note_payloads WHERE point_id = ?`, pointID)
	return err
}

// Query performs a cosine k-NN search, returning up to limit results above
// scoreThreshold, cosine-descending (spec §4.2 "query").
func (s *Store) Query(vec []float32, limit int, scoreThreshold float64) ([]Scored, error) {
	return s.query(vec, limit, scoreThreshold, nil)
}

// FilteredQuery restricts the k-NN search to note_id in allowList (spec §4.2
// "filtered_query"). No score threshold is applied.
func (s *Store) FilteredQuery(vec []float32, allowList []string, limit int) ([]Scored, error) {
	if len(allowList) == 0 {
		return nil, nil
	}
	allowed := make(map[string]bool, len(allowList))
	for _, id := range allowList {
		allowed[id] = true
	}
	// Over-fetch since filtering happens after the kNN pass.
	return s.query(vec, limit*4+len(allowList), math.Inf(-1), allowed)
}

func (s *Store) query(vec []float32, limit int, scoreThreshold float64, allowed map[string]bool) ([]Scored, error) {
	if limit <= 0 {
		limit = 10
	}
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT v.distance, p.note_id, p.description, p.type, p.confidence, p.created, p.last_retrieved, p.updated_at
		FROM note_vectors v
		JOIN note_payloads p ON p.point_id = v.point_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		vecData, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var distance float64
		var p Payload
		if err := rows.Scan(&distance, &p.NoteID, &p.Description, &p.Type, &p.Confidence, &p.Created, &p.LastRetrieved, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		if allowed != nil && !allowed[p.NoteID] {
			continue
		}
		score := 1 - distance // cosine distance in [0,2] -> similarity
		if score < scoreThreshold {
			continue
		}
		out = append(out, Scored{Payload: p, Score: score})
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// SetLastRetrieved bulk-patches last_retrieved for every note_id in ids
// (spec §4.2 "set_last_retrieved").
func (s *Store) SetLastRetrieved(ids []string, date string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin set_last_retrieved: %w", err)
	}
	stmt, err := tx.Prepare(`UPDATE note_payloads SET last_retrieved = ? WHERE note_id = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare set_last_retrieved: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(date, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("set_last_retrieved %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// EmbedQuery embeds text as a query vector using the store's configured
// embedder, used by the extraction engine's pre-query step (spec §4.6 step
// 3) and the retrieval engine's graph-expansion scoring.
func (s *Store) EmbedQuery(text string) ([]float32, error) {
	return s.embedder.GetQueryEmbedding(text)
}

// SemanticDup embeds the first 500 chars of content as a query vector and
// checks whether the top-1 match scores at or above threshold. Returns the
// matched note_id when it does (spec §4.2 "semantic_dup").
func (s *Store) SemanticDup(content string, threshold float64) (bool, string, error) {
	probe := content
	if len(probe) > 500 {
		probe = probe[:500]
	}
	vec, err := s.embedder.GetQueryEmbedding(probe)
	if err != nil {
		return false, "", fmt.Errorf("embed dedup probe: %w", err)
	}
	results, err := s.Query(vec, 1, threshold)
	if err != nil {
		return false, "", err
	}
	if len(results) == 0 {
		return false, "", nil
	}
	return true, results[0].Payload.NoteID, nil
}

// Count returns the number of points currently stored. Used by the
// reflector's REFLECT_MIN_NOTES gate (spec §4.7) and by tests.
func (s *Store) Count() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM note_payloads`).Scan(&n)
	return n, err
}

// GetVector returns the stored embedding for a note_id, used by the
// reflector's cluster detection (spec §4.7).
func (s *Store) GetVector(noteID string) ([]float32, bool, error) {
	pointID := PointID(noteID)
	var blob []byte
	err := s.conn.QueryRow(`SELECT embedding FROM note_vectors WHERE point_id = ?`, pointID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get vector for %s: %w", noteID, err)
	}
	return deserializeFloat32(blob), true, nil
}

// GetPayload returns the stored payload for a single note_id, used by the
// retrieval pipeline's graph-expansion step to enrich BFS candidates that
// fall outside the vector k-NN window (spec §4.5 step 7).
func (s *Store) GetPayload(noteID string) (Payload, bool, error) {
	var p Payload
	err := s.conn.QueryRow(`
		SELECT note_id, description, type, confidence, created, last_retrieved, updated_at
		FROM note_payloads WHERE note_id = ?`, noteID,
	).Scan(&p.NoteID, &p.Description, &p.Type, &p.Confidence, &p.Created, &p.LastRetrieved, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Payload{}, false, nil
	}
	if err != nil {
		return Payload{}, false, fmt.Errorf("get payload for %s: %w", noteID, err)
	}
	return p, true, nil
}

// AllNoteIDs returns every note_id currently stored, used by the reflector's
// cluster and staleness sweeps (spec §4.7).
func (s *Store) AllNoteIDs() ([]string, error) {
	rows, err := s.conn.Query(`SELECT note_id FROM note_payloads`)
	if err != nil {
		return nil, fmt.Errorf("list note ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deserializeFloat32 decodes sqlite-vec's raw little-endian float32 blob
// format back into a vector.
func deserializeFloat32(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
