// Package config loads memo-rize configuration from TOML + environment
// variables + built-in defaults.
//
// Precedence: environment variables > config file values > built-in defaults,
// matching the teacher's own "CLI flags > env vars > .same/config.toml >
// built-in defaults" chain (minus the CLI-flag layer, which individual
// commands apply on top of the loaded Config).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	Paths     PathsConfig
	Models    ModelsConfig
	Retrieval RetrievalConfig
	Scoring   ScoringConfig
	Graph     GraphConfig
	Extract   ExtractConfig
	Sources   SourcesConfig
	Reflect   ReflectConfig
}

// PathsConfig holds on-disk layout paths (spec.md §6).
type PathsConfig struct {
	VaultNotesDir    string `toml:"vault_notes_dir"`
	QdrantPath       string `toml:"qdrant_path"`
	QueueDir         string `toml:"queue_dir"`
	BM25IndexPath    string `toml:"bm25_index_path"`
	GraphCachePath   string `toml:"graph_cache_path"`
	SourceChunksDir  string `toml:"source_chunks_dir"`
	ForgetArchiveDir string `toml:"forget_archive_dir"`
	LogFile          string `toml:"log_file"`
}

// ModelsConfig holds embedding/rerank/extraction model selection.
type ModelsConfig struct {
	EmbedProvider   string `toml:"embed_provider"`
	EmbedModel      string `toml:"embed_model"`
	EmbedDim        int    `toml:"embed_dim"`
	EmbedBatchSize  int    `toml:"embed_batch_size"`
	EmbedAPIKey     string `toml:"embed_api_key"`
	EmbedBaseURL    string `toml:"embed_base_url"`
	RerankModel     string `toml:"rerank_model"`
	RerankBaseURL   string `toml:"rerank_base_url"`
	ExtractModel    string `toml:"extract_model"`
	ExtractProvider string `toml:"extract_provider"`
}

// RetrievalConfig holds hybrid-retrieval tuning (spec.md §4.5, §6).
type RetrievalConfig struct {
	RetrieveScoreThreshold float64 `toml:"retrieve_score_threshold"`
	RetrieveTopK           int     `toml:"retrieve_top_k"`
	MinQueryLength         int     `toml:"min_query_length"`
	BM25Enabled            bool    `toml:"bm25_enabled"`
	RRFK                   int     `toml:"rrf_k"`
	BM25TopK               int     `toml:"bm25_top_k"`
	VectorTopK             int     `toml:"vector_top_k"`
	RRFFinalTopK           int     `toml:"rrf_final_top_k"`
	RerankEnabled          bool    `toml:"rerank_enabled"`
	RerankCandidates       int     `toml:"rerank_candidates"`
}

// ScoringConfig holds decay/confidence tuning (spec.md §4.5 step 6).
type ScoringConfig struct {
	ConfidenceBoost   float64 `toml:"confidence_boost"`
	DecayEnabled      bool    `toml:"decay_enabled"`
	DecayHalfLifeDays float64 `toml:"decay_half_life_days"`
	DecayFloor        float64 `toml:"decay_floor"`
}

// GraphConfig holds graph-expansion tuning (spec.md §4.5 step 7).
type GraphConfig struct {
	MaxSecondary        int `toml:"max_secondary"`
	MaxBacklinksPerNote int `toml:"max_backlinks_per_note"`
	BFSDepth            int `toml:"bfs_depth"`
}

// ExtractConfig holds extraction-pipeline tuning (spec.md §4.6).
type ExtractConfig struct {
	DedupThreshold    float64 `toml:"dedup_threshold"`
	MinTurns          int     `toml:"min_turns"`
	MinNewTurns       int     `toml:"min_new_turns"`
	MaxCodeBlockChars int     `toml:"max_code_block_chars"`
	ValidationEnabled bool    `toml:"validation_enabled"`
}

// SourcesConfig holds source-chunk tuning (spec.md §3, §4.5 step 8).
type SourcesConfig struct {
	SourceChunksEnabled  bool `toml:"source_chunks_enabled"`
	SourceChunkMaxChars  int  `toml:"source_chunk_max_chars"`
	SourceInjectMaxChars int  `toml:"source_inject_max_chars"`
}

// ReflectConfig holds reflector tuning (spec.md §4.7).
type ReflectConfig struct {
	ReflectMinNotes         int            `toml:"reflect_min_notes"`
	ReflectClusterThreshold float64        `toml:"reflect_cluster_threshold"`
	ReflectStaleDays        int            `toml:"reflect_stale_days"`
	ForgetDefaultTTLDays    map[string]int `toml:"forget_default_ttl_days"`
}

// Defaults returns the built-in configuration, matching the literal values
// named throughout spec.md.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, ".memo-rize")
	return Config{
		Paths: PathsConfig{
			VaultNotesDir:    filepath.Join(root, "vault"),
			QdrantPath:       filepath.Join(root, "qdrant"),
			QueueDir:         filepath.Join(root, "queue"),
			BM25IndexPath:    filepath.Join(root, "vault_bm25_index.json"),
			GraphCachePath:   filepath.Join(root, "vault_graph_cache.json"),
			SourceChunksDir:  filepath.Join(root, "vault", "_sources"),
			ForgetArchiveDir: filepath.Join(root, "vault", "_archived"),
			LogFile:          filepath.Join(root, "memo-rize.log"),
		},
		Models: ModelsConfig{
			EmbedProvider:   "ollama",
			EmbedModel:      "nomic-embed-text",
			EmbedDim:        768,
			EmbedBatchSize:  32,
			RerankModel:     "",
			ExtractProvider: "ollama",
			ExtractModel:    "",
		},
		Retrieval: RetrievalConfig{
			RetrieveScoreThreshold: 0.60,
			RetrieveTopK:           10,
			MinQueryLength:         20,
			BM25Enabled:            true,
			RRFK:                   60,
			BM25TopK:               20,
			VectorTopK:             20,
			RRFFinalTopK:           10,
			RerankEnabled:          false,
			RerankCandidates:       30,
		},
		Scoring: ScoringConfig{
			ConfidenceBoost:   1.2,
			DecayEnabled:      true,
			DecayHalfLifeDays: 90,
			DecayFloor:        0.3,
		},
		Graph: GraphConfig{
			MaxSecondary:        12,
			MaxBacklinksPerNote: 3,
			BFSDepth:            2,
		},
		Extract: ExtractConfig{
			DedupThreshold:    0.85,
			MinTurns:          5,
			MinNewTurns:       10,
			MaxCodeBlockChars: 1500,
			ValidationEnabled: true,
		},
		Sources: SourcesConfig{
			SourceChunksEnabled:  true,
			SourceChunkMaxChars:  4000,
			SourceInjectMaxChars: 1200,
		},
		Reflect: ReflectConfig{
			ReflectMinNotes:         30,
			ReflectClusterThreshold: 0.82,
			ReflectStaleDays:        120,
			ForgetDefaultTTLDays:    map[string]int{},
		},
	}
}

// Load builds a Config from the built-in defaults, overridden by the TOML
// file at path (if it exists), overridden in turn by environment variables.
// An empty path skips file loading.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	i := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	f := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = parseBool(v, *dst)
		}
	}

	str("VAULT_NOTES_DIR", &cfg.Paths.VaultNotesDir)
	str("QDRANT_PATH", &cfg.Paths.QdrantPath)
	str("QUEUE_DIR", &cfg.Paths.QueueDir)
	str("BM25_INDEX_PATH", &cfg.Paths.BM25IndexPath)
	str("GRAPH_CACHE_PATH", &cfg.Paths.GraphCachePath)
	str("SOURCE_CHUNKS_DIR", &cfg.Paths.SourceChunksDir)
	str("FORGET_ARCHIVE_DIR", &cfg.Paths.ForgetArchiveDir)

	str("EMBED_PROVIDER", &cfg.Models.EmbedProvider)
	str("EMBED_MODEL", &cfg.Models.EmbedModel)
	i("EMBED_DIM", &cfg.Models.EmbedDim)
	i("EMBED_BATCH_SIZE", &cfg.Models.EmbedBatchSize)
	str("EMBED_API_KEY", &cfg.Models.EmbedAPIKey)
	str("EMBED_BASE_URL", &cfg.Models.EmbedBaseURL)
	str("RERANK_MODEL", &cfg.Models.RerankModel)
	str("EXTRACT_MODEL", &cfg.Models.ExtractModel)
	str("EXTRACT_PROVIDER", &cfg.Models.ExtractProvider)

	f("RETRIEVE_SCORE_THRESHOLD", &cfg.Retrieval.RetrieveScoreThreshold)
	i("RETRIEVE_TOP_K", &cfg.Retrieval.RetrieveTopK)
	i("MIN_QUERY_LENGTH", &cfg.Retrieval.MinQueryLength)
	b("BM25_ENABLED", &cfg.Retrieval.BM25Enabled)
	i("RRF_K", &cfg.Retrieval.RRFK)
	i("BM25_TOP_K", &cfg.Retrieval.BM25TopK)
	i("VECTOR_TOP_K", &cfg.Retrieval.VectorTopK)
	i("RRF_FINAL_TOP_K", &cfg.Retrieval.RRFFinalTopK)
	b("RERANK_ENABLED", &cfg.Retrieval.RerankEnabled)
	i("RERANK_CANDIDATES", &cfg.Retrieval.RerankCandidates)

	f("CONFIDENCE_BOOST", &cfg.Scoring.ConfidenceBoost)
	b("DECAY_ENABLED", &cfg.Scoring.DecayEnabled)
	f("DECAY_HALF_LIFE_DAYS", &cfg.Scoring.DecayHalfLifeDays)
	f("DECAY_FLOOR", &cfg.Scoring.DecayFloor)

	i("MAX_SECONDARY", &cfg.Graph.MaxSecondary)
	i("MAX_BACKLINKS_PER_NOTE", &cfg.Graph.MaxBacklinksPerNote)
	i("BFS_DEPTH", &cfg.Graph.BFSDepth)

	f("DEDUP_THRESHOLD", &cfg.Extract.DedupThreshold)
	i("MIN_TURNS", &cfg.Extract.MinTurns)
	i("MIN_NEW_TURNS", &cfg.Extract.MinNewTurns)
	i("MAX_CODE_BLOCK_CHARS", &cfg.Extract.MaxCodeBlockChars)
	b("VALIDATION_ENABLED", &cfg.Extract.ValidationEnabled)

	b("SOURCE_CHUNKS_ENABLED", &cfg.Sources.SourceChunksEnabled)
	i("SOURCE_CHUNK_MAX_CHARS", &cfg.Sources.SourceChunkMaxChars)
	i("SOURCE_INJECT_MAX_CHARS", &cfg.Sources.SourceInjectMaxChars)

	i("REFLECT_MIN_NOTES", &cfg.Reflect.ReflectMinNotes)
	f("REFLECT_CLUSTER_THRESHOLD", &cfg.Reflect.ReflectClusterThreshold)
	i("REFLECT_STALE_DAYS", &cfg.Reflect.ReflectStaleDays)
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// SourceChunkPath returns the source-chunk file path for a note id.
func (c Config) SourceChunkPath(noteID string) string {
	return filepath.Join(c.Paths.SourceChunksDir, noteID+".md")
}

// NotePath returns a note's file path for a given note id.
func (c Config) NotePath(noteID string) string {
	return filepath.Join(c.Paths.VaultNotesDir, noteID+".md")
}
