// Package main is the entrypoint for the memo-rize CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tofunori/memo-rize/internal/bm25index"
	"github.com/tofunori/memo-rize/internal/config"
	"github.com/tofunori/memo-rize/internal/embedding"
	"github.com/tofunori/memo-rize/internal/extraction"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/llmclient"
	"github.com/tofunori/memo-rize/internal/logx"
	"github.com/tofunori/memo-rize/internal/queue"
	"github.com/tofunori/memo-rize/internal/reflector"
	"github.com/tofunori/memo-rize/internal/rerank"
	"github.com/tofunori/memo-rize/internal/retrieval"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

// Version is set at build time via ldflags.
var Version = "dev"

// configPath is set via the root --config persistent flag.
var configPath string

func main() {
	root := &cobra.Command{
		Use:   "memo-rize",
		Short: "A personal long-term memory engine for coding agents",
		Long: `memo-rize gives an AI coding agent a persistent, file-based memory.

It extracts durable facts from your conversations into a plain-Markdown
vault, indexes them for hybrid vector+keyword retrieval, and periodically
reflects on the vault to forget what has expired and flag what has gone
stale.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (defaults to built-in values + env overrides)")

	root.AddCommand(indexCmd())
	root.AddCommand(reflectCmd())
	root.AddCommand(enqueueCmd())
	root.AddCommand(retrieveCmd())
	root.AddCommand(workCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "memo-rize: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the memo-rize version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("memo-rize %s\n", Version)
			return nil
		},
	}
}

// deps bundles every component a subcommand might need, each nilable the
// same way the package constructors tolerate (spec §9 "File-as-database":
// a missing on-disk cache degrades the pipeline rather than failing it).
type deps struct {
	cfg      config.Config
	store    *vault.Store
	vectors  *vectorindex.Store
	bm25     *bm25index.Index
	graph    *graphcache.Cache
	embedder embedding.Provider
	reranker rerank.Reranker
	llm      llmclient.Client
	queue    *queue.Queue
	log      *logx.Logger
}

// loadDeps resolves config and opens every backing store it can, logging
// (never failing) when an optional component is unavailable. Commands
// decide for themselves whether a missing component is fatal.
func loadDeps() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	d := &deps{
		cfg:   cfg,
		store: vault.New(cfg.Paths.VaultNotesDir),
		queue: queue.New(cfg.Paths.QueueDir),
		log:   logx.New(cfg.Paths.LogFile),
	}

	if embedder, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:   cfg.Models.EmbedProvider,
		Model:      cfg.Models.EmbedModel,
		APIKey:     cfg.Models.EmbedAPIKey,
		BaseURL:    cfg.Models.EmbedBaseURL,
		Dimensions: cfg.Models.EmbedDim,
	}); err == nil {
		d.embedder = embedder
	} else {
		d.log.Printf("EMBED provider unavailable, degrading to keyword-only: %v", err)
	}

	if d.embedder != nil {
		if vectors, err := vectorindex.Open(cfg.Paths.QdrantPath, cfg.Models.EmbedDim, d.embedder); err == nil {
			d.vectors = vectors
		} else {
			d.log.Printf("VECTOR store unavailable: %v", err)
		}
	}

	if bm25, err := bm25index.Load(cfg.Paths.BM25IndexPath); err == nil {
		d.bm25 = bm25
	}

	if graph, err := graphcache.Load(cfg.Paths.GraphCachePath); err == nil {
		d.graph = graph
	}

	if cfg.Retrieval.RerankEnabled && cfg.Models.RerankBaseURL != "" {
		d.reranker = rerank.NewHTTPReranker(cfg.Models.RerankBaseURL, cfg.Models.EmbedAPIKey, cfg.Models.RerankModel)
	} else {
		d.reranker = rerank.Stub{}
	}

	if llm, err := llmclient.NewClient(cfg.Models); err == nil {
		d.llm = llm
	} else {
		d.log.Printf("EXTRACT llm client unavailable: %v", err)
	}

	return d, nil
}

// close releases any handle that owns a long-lived resource.
func (d *deps) close() {
	if d.vectors != nil {
		d.vectors.Close()
	}
}

func (d *deps) retrievalEngine() *retrieval.Engine {
	return retrieval.New(d.cfg, d.store, d.vectors, d.bm25, d.graph, d.reranker, d.embedder, d.log)
}

func (d *deps) extractionEngine() *extraction.Engine {
	return extraction.New(d.cfg, d.store, d.vectors, d.graph, d.llm, d.queue, d.log)
}

func (d *deps) reflectorEngine() *reflector.Reflector {
	return reflector.New(d.cfg, d.store, d.vectors, d.graph, d.log)
}
