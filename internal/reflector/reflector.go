// Package reflector implements the Reflector (spec §4.7): a periodic
// maintenance sweep over the vault that detects expired, clustered, stale,
// and orphaned notes, and either reports them or applies the corresponding
// mutation. Grounded on the teacher's own "scan then decide then mutate"
// separation (internal/indexer/indexer.go builds a report before writing
// anything) and on the retrieval engine's decay/date-reference helpers
// (internal/retrieval/score.go) for the date-arithmetic idiom.
package reflector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tofunori/memo-rize/internal/config"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/logx"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

const dayLayout = "2006-01-02"

// ExpiredNote is one note flagged for removal, with the reason it expired.
type ExpiredNote struct {
	NoteID string
	Reason string // "forget_after" or "ttl:<type>"
}

// Report is the Reflector's findings for a single sweep (spec §4.7).
type Report struct {
	Skipped   bool // true when |notes| < REFLECT_MIN_NOTES
	NoteCount int
	Expired   []ExpiredNote
	Clusters  [][]string
	Stale     []string
	Orphans   []string
}

// Reflector runs the maintenance sweep described by spec §4.7.
type Reflector struct {
	cfg     config.Config
	vault   *vault.Store
	vectors *vectorindex.Store // nil disables cluster detection and TTL vector-point deletion
	graph   *graphcache.Cache  // nil disables orphan detection
	log     *logx.Logger
}

// New builds a Reflector. vectors and graph may be nil; the corresponding
// sections of the report are simply empty (spec §9 "File-as-database").
func New(cfg config.Config, store *vault.Store, vectors *vectorindex.Store, graph *graphcache.Cache, log *logx.Logger) *Reflector {
	return &Reflector{cfg: cfg, vault: store, vectors: vectors, graph: graph, log: log}
}

// Run performs one sweep. In report-only mode (apply=false) the vault is
// read but never mutated; in apply mode every finding is acted on (spec
// §4.7 "two modes: report-only or --apply").
func (r *Reflector) Run(apply bool) (Report, error) {
	ids, err := r.vault.ListNotes()
	if err != nil {
		return Report{}, fmt.Errorf("list vault notes: %w", err)
	}
	if len(ids) < r.cfg.Reflect.ReflectMinNotes {
		return Report{Skipped: true, NoteCount: len(ids)}, nil
	}

	notes := make(map[string]vault.Note, len(ids))
	for _, id := range ids {
		n, err := r.vault.Parse(id)
		if err != nil {
			continue
		}
		notes[id] = n
	}

	today := time.Now()
	rep := Report{NoteCount: len(ids)}
	rep.Expired = r.findExpired(ids, notes, today)
	rep.Clusters = r.findClusters(ids)
	rep.Stale = r.findStale(ids, notes, today)
	rep.Orphans = r.findOrphans()

	if apply {
		if err := r.applyExpired(rep.Expired); err != nil {
			return rep, err
		}
		if err := r.applyStale(rep.Stale); err != nil {
			return rep, err
		}
	}

	return rep, nil
}

// findExpired implements spec §4.7 "Expired": forget_after ≤ today, or no
// forget_after but the note's type carries a configured default TTL and
// today − created ≥ ttl.
func (r *Reflector) findExpired(ids []string, notes map[string]vault.Note, today time.Time) []ExpiredNote {
	var out []ExpiredNote
	for _, id := range ids {
		n, ok := notes[id]
		if !ok {
			continue
		}
		if n.Meta.ForgetAfter != "" {
			if forgetAfter, err := time.Parse(dayLayout, n.Meta.ForgetAfter); err == nil && !forgetAfter.After(today) {
				out = append(out, ExpiredNote{NoteID: id, Reason: "forget_after"})
			}
			continue
		}
		ttl, hasTTL := r.cfg.Reflect.ForgetDefaultTTLDays[n.Meta.Type]
		if !hasTTL || n.Meta.Created == "" {
			continue
		}
		created, err := time.Parse(dayLayout, n.Meta.Created)
		if err != nil {
			continue
		}
		daysSince := int(today.Sub(created).Hours() / 24)
		if daysSince >= ttl {
			out = append(out, ExpiredNote{NoteID: id, Reason: "ttl:" + n.Meta.Type})
		}
	}
	return out
}

// findClusters implements spec §4.7 "Clusters": walk un-clustered notes in
// slug order, and for each, query its top-5 neighbors above
// REFLECT_CLUSTER_THRESHOLD; the note plus its unclustered neighbors form a
// cluster.
func (r *Reflector) findClusters(ids []string) [][]string {
	if r.vectors == nil {
		return nil
	}
	clustered := make(map[string]bool, len(ids))
	var clusters [][]string

	for _, id := range ids {
		if clustered[id] {
			continue
		}
		vec, found, err := r.vectors.GetVector(id)
		if err != nil || !found {
			continue
		}
		hits, err := r.vectors.Query(vec, 6, r.cfg.Reflect.ReflectClusterThreshold)
		if err != nil {
			continue
		}
		cluster := []string{id}
		clustered[id] = true
		for _, h := range hits {
			if h.Payload.NoteID == id || clustered[h.Payload.NoteID] {
				continue
			}
			cluster = append(cluster, h.Payload.NoteID)
			clustered[h.Payload.NoteID] = true
		}
		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// findStale implements spec §4.7 "Stale": created ≤ today−REFLECT_STALE_DAYS
// and last_retrieved ≤ today−REFLECT_STALE_DAYS, reading last_retrieved from
// the vector payload and falling back to created when the payload is absent.
func (r *Reflector) findStale(ids []string, notes map[string]vault.Note, today time.Time) []string {
	var out []string
	cutoff := today.AddDate(0, 0, -r.cfg.Reflect.ReflectStaleDays)

	for _, id := range ids {
		n, ok := notes[id]
		if !ok || n.Meta.Created == "" || n.Meta.Stale {
			continue
		}
		created, err := time.Parse(dayLayout, n.Meta.Created)
		if err != nil || created.After(cutoff) {
			continue
		}

		lastRetrieved := n.Meta.Created
		if r.vectors != nil {
			if p, found, err := r.vectors.GetPayload(id); err == nil && found && p.LastRetrieved != "" {
				lastRetrieved = p.LastRetrieved
			}
		}
		retrieved, err := time.Parse(dayLayout, lastRetrieved)
		if err != nil || retrieved.After(cutoff) {
			continue
		}

		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// findOrphans implements spec §4.7 "Orphans": notes with empty outbound and
// empty backlinks in the graph cache.
func (r *Reflector) findOrphans() []string {
	if r.graph == nil {
		return nil
	}
	return r.graph.Orphans()
}

// applyExpired moves each expired note's file into FORGET_ARCHIVE_DIR and
// deletes its vector point (spec §4.7 "On apply").
func (r *Reflector) applyExpired(expired []ExpiredNote) error {
	for _, e := range expired {
		if err := r.archiveNote(e.NoteID); err != nil {
			r.logf("REFLECT error archiving %s: %v", e.NoteID, err)
			continue
		}
		if r.vectors != nil {
			if err := r.vectors.DeletePoint(e.NoteID); err != nil {
				r.logf("REFLECT error deleting vector for %s: %v", e.NoteID, err)
			}
		}
		r.logf("REFLECT expired: %s (%s)", e.NoteID, e.Reason)
	}
	return nil
}

func (r *Reflector) archiveNote(noteID string) error {
	raw, err := os.ReadFile(r.vault.Path(noteID))
	if err != nil {
		return fmt.Errorf("read %s: %w", noteID, err)
	}
	dest := filepath.Join(r.cfg.Paths.ForgetArchiveDir, noteID+".md")
	if err := vault.WriteAtomic(dest, raw); err != nil {
		return fmt.Errorf("archive %s: %w", noteID, err)
	}
	if err := os.Remove(r.vault.Path(noteID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove original %s: %w", noteID, err)
	}
	return nil
}

// applyStale injects stale: true + stale_since into every stale note (spec
// §4.7 "On apply").
func (r *Reflector) applyStale(stale []string) error {
	today := time.Now().Format(dayLayout)
	for _, id := range stale {
		raw, err := os.ReadFile(r.vault.Path(id))
		if err != nil {
			r.logf("REFLECT error reading %s: %v", id, err)
			continue
		}
		content := vault.InjectFrontmatterField(string(raw), "stale", "true")
		content = vault.InjectFrontmatterField(content, "stale_since", today)
		if err := vault.WriteAtomic(r.vault.Path(id), []byte(content)); err != nil {
			r.logf("REFLECT error marking %s stale: %v", id, err)
			continue
		}
		r.logf("REFLECT stale: %s", id)
	}
	return nil
}

func (r *Reflector) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
