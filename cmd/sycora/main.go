package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ohadalab/sycora/pkg/cache"
	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/contextbuilder"
	"github.com/ohadalab/sycora/pkg/embedders"
	"github.com/ohadalab/sycora/pkg/engine"
	"github.com/ohadalab/sycora/pkg/intent"
	"github.com/ohadalab/sycora/pkg/llms"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/reformulate"
	"github.com/ohadalab/sycora/pkg/search/enrich"
	"github.com/ohadalab/sycora/pkg/search/hybrid"
	"github.com/ohadalab/sycora/pkg/search/lexical"
	"github.com/ohadalab/sycora/pkg/search/rerank"
	"github.com/ohadalab/sycora/pkg/search/vector"
	"github.com/ohadalab/sycora/pkg/server"
)

// version is overridden at build time with -ldflags.
var version = "dev"

type cli struct {
	Config string `help:"Path to the configuration file." default:"sycora.yaml" type:"path"`

	Serve   serveCmd   `cmd:"" default:"1" help:"Start the HTTP API server."`
	Query   queryCmd   `cmd:"" help:"Answer a single query and print the result."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type serveCmd struct{}

type queryCmd struct {
	Text     string `arg:"" help:"The question to answer."`
	NResults int    `help:"Number of passages to retrieve." default:"5"`
	Sources  bool   `help:"Include source passages in the output."`
	Partie   *int   `help:"Restrict retrieval to a partie."`
	Chapitre *int   `help:"Restrict retrieval to a chapitre."`
	JSON     bool   `help:"Print the full response as JSON."`
}

type versionCmd struct{}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("sycora"),
		kong.Description("Hybrid retrieval and answer engine for the OHADA/SYSCOHADA corpus."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}

func (v *versionCmd) Run(*cli) error {
	fmt.Println(version)
	return nil
}

func (s *serveCmd) Run(c *cli) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, eng, cleanup, err := bootstrap(ctx, c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	return server.New(eng, &cfg.Server).Start(ctx)
}

func (q *queryCmd) Run(c *cli) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, eng, cleanup, err := bootstrap(ctx, c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := eng.Search(ctx, &engine.Request{
		Query:          q.Text,
		NResults:       q.NResults,
		IncludeSources: q.Sources,
		Partie:         q.Partie,
		Chapitre:       q.Chapitre,
	})
	if err != nil {
		return err
	}

	if q.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Println(answer.Answer)
	if q.Sources {
		fmt.Println()
		for i, src := range answer.Sources {
			fmt.Printf("[%d] %s (score %.2f)\n", i+1, src.ID, src.Score)
			fmt.Printf("    %s\n", src.Preview)
		}
	}
	return nil
}

// bootstrap loads configuration and assembles the full pipeline.
func bootstrap(ctx context.Context, configPath string) (*config.Config, *engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format)
	log := logger.For("main")
	log.Info("starting sycora", "version", version, "environment", cfg.Environment)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*config.Config, *engine.Engine, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	llmChain, err := llms.NewChainFromConfig(&cfg.Providers)
	if err != nil {
		return fail(fmt.Errorf("failed to build llm chain: %w", err))
	}
	closers = append(closers, func() { llmChain.Close() })

	embedChain, err := embedders.NewChainFromConfig(&cfg.Providers, cfg.VectorStore.Dimension)
	if err != nil {
		return fail(fmt.Errorf("failed to build embedding chain: %w", err))
	}
	closers = append(closers, func() { embedChain.Close() })

	store, err := cache.NewStore(ctx, &cfg.Cache)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize cache: %w", err))
	}
	closers = append(closers, func() { store.Close() })

	qdrantStore, err := vector.NewQdrantStore(&cfg.VectorStore)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to vector store: %w", err))
	}
	closers = append(closers, func() { qdrantStore.Close() })

	var reranker hybrid.Reranker
	if cfg.Reranker.Endpoint != "" {
		reranker = rerank.New(&cfg.Reranker)
	}

	var enricher hybrid.Enricher
	if cfg.Metadata.DSNEnv != "" {
		dsn := os.Getenv(cfg.Metadata.DSNEnv)
		if dsn == "" {
			log.Warn("metadata DSN env var is empty, enrichment disabled", "env", cfg.Metadata.DSNEnv)
		} else {
			e, err := enrich.New(&cfg.Metadata, dsn)
			if err != nil {
				return fail(fmt.Errorf("failed to connect to metadata store: %w", err))
			}
			closers = append(closers, func() { e.Close() })
			enricher = e
		}
	}

	retriever := hybrid.New(
		lexical.NewManager(vector.NewCorpusLoader(qdrantStore), cfg.Retriever.SnapshotDir),
		vector.NewSearcher(qdrantStore),
		embedChain,
		reranker,
		enricher,
		store,
		cfg.VectorStore.Collection,
		&cfg.Retriever,
	)

	eng := engine.New(
		llmChain,
		intent.NewClassifier(llmChain, cfg.Personality),
		reformulate.New(llmChain),
		retriever,
		contextbuilder.New(cfg.Context.MaxTokens),
		store,
	)

	return cfg, eng, cleanup, nil
}
