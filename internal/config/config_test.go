package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Retrieval.RetrieveScoreThreshold != 0.60 {
		t.Errorf("RetrieveScoreThreshold = %v, want 0.60", cfg.Retrieval.RetrieveScoreThreshold)
	}
	if cfg.Retrieval.RRFK != 60 {
		t.Errorf("RRFK = %d, want 60", cfg.Retrieval.RRFK)
	}
	if cfg.Scoring.DecayHalfLifeDays != 90 {
		t.Errorf("DecayHalfLifeDays = %v, want 90", cfg.Scoring.DecayHalfLifeDays)
	}
	if cfg.Scoring.DecayFloor != 0.3 {
		t.Errorf("DecayFloor = %v, want 0.3", cfg.Scoring.DecayFloor)
	}
	if cfg.Extract.DedupThreshold != 0.85 {
		t.Errorf("DedupThreshold = %v, want 0.85", cfg.Extract.DedupThreshold)
	}
	if cfg.Reflect.ReflectMinNotes != 30 {
		t.Errorf("ReflectMinNotes = %d, want 30", cfg.Reflect.ReflectMinNotes)
	}
	if cfg.Reflect.ReflectClusterThreshold != 0.82 {
		t.Errorf("ReflectClusterThreshold = %v, want 0.82", cfg.Reflect.ReflectClusterThreshold)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defaults := Defaults()
	if cfg.Retrieval.RetrieveTopK != defaults.Retrieval.RetrieveTopK {
		t.Errorf("expected defaults when file absent, got %+v", cfg.Retrieval)
	}
}

func TestLoad_TOMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[retrieval]\nretrieve_top_k = 25\nrrf_k = 40\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.RetrieveTopK != 25 {
		t.Errorf("RetrieveTopK = %d, want 25 (from file)", cfg.Retrieval.RetrieveTopK)
	}
	if cfg.Retrieval.RRFK != 40 {
		t.Errorf("RRFK = %d, want 40 (from file)", cfg.Retrieval.RRFK)
	}
	// Untouched fields keep their defaults.
	if cfg.Scoring.DecayFloor != 0.3 {
		t.Errorf("DecayFloor = %v, want default 0.3", cfg.Scoring.DecayFloor)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not [[ valid toml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoad_EnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[retrieval]\nretrieve_top_k = 25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RETRIEVE_TOP_K", "5")
	t.Setenv("DECAY_HALF_LIFE_DAYS", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.RetrieveTopK != 5 {
		t.Errorf("RetrieveTopK = %d, want 5 (env wins over file)", cfg.Retrieval.RetrieveTopK)
	}
	if cfg.Scoring.DecayHalfLifeDays != 30 {
		t.Errorf("DecayHalfLifeDays = %v, want 30 (from env)", cfg.Scoring.DecayHalfLifeDays)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in       string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in, tt.fallback); got != tt.want {
			t.Errorf("parseBool(%q, %v) = %v, want %v", tt.in, tt.fallback, got, tt.want)
		}
	}
}

func TestNotePathAndSourceChunkPath(t *testing.T) {
	cfg := Defaults()
	cfg.Paths.VaultNotesDir = "/vault"
	cfg.Paths.SourceChunksDir = "/vault/_sources"

	if got := cfg.NotePath("abc-123"); got != filepath.Join("/vault", "abc-123.md") {
		t.Errorf("NotePath = %q", got)
	}
	if got := cfg.SourceChunkPath("abc-123"); got != filepath.Join("/vault/_sources", "abc-123.md") {
		t.Errorf("SourceChunkPath = %q", got)
	}
}
