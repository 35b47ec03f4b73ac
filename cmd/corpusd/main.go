package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"

	"github.com/substratehq/corpus/internal/types"
	"github.com/substratehq/corpus/pkg/chunker"
	"github.com/substratehq/corpus/pkg/config"
	"github.com/substratehq/corpus/pkg/fetch"
	"github.com/substratehq/corpus/pkg/ingest"
	"github.com/substratehq/corpus/pkg/jobs"
	"github.com/substratehq/corpus/pkg/llm"
	"github.com/substratehq/corpus/pkg/objstore"
	"github.com/substratehq/corpus/pkg/rank"
	"github.com/substratehq/corpus/pkg/store"
	"github.com/substratehq/corpus/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString:  cfg.Database.URL,
		ChunksTable: cfg.Database.TableName,
		VectorDim:   cfg.Embedding.VectorDim,
		BatchSize:   cfg.Database.BatchSize,
	})
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	// Schema bootstrap is idempotent; a dimensionality mismatch against an
	// existing deployment is fatal here, before any request is served.
	if err := vectorStore.Init(ctx); err != nil {
		return err
	}

	var embedder types.Embedder
	var ranker types.Ranker
	var chat *llm.ChatEngine

	if cfg.Embedding.APIKey != "" {
		emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			VectorDim: cfg.Embedding.VectorDim,
			RateLimit: cfg.Embedding.RateLimit,
		})
		if err != nil {
			return err
		}
		embedder = emb
		ranker = rank.NewHybridRanker(emb, vectorStore)

		chat, err = llm.NewChatWithConfig(llm.ChatConfig{
			APIKey:      cfg.Embedding.APIKey,
			BaseURL:     cfg.Embedding.BaseURL,
			Model:       cfg.Embedding.ChatModel,
			Temperature: 0.7,
		})
		if err != nil {
			return err
		}

		log.Info().Str("model", cfg.Embedding.Model).Int("dim", cfg.Embedding.VectorDim).Msg("embedding provider configured")
	} else {
		// No provider credentials; degrade to keyword ranking and skip
		// answer generation.
		ranker = rank.NewKeywordOnlyRanker(vectorStore)
		log.Warn().Msg("no embedding provider configured, using keyword-only ranking")
	}

	var objects types.ObjectStore
	if cfg.ObjectStore.Endpoint != "" {
		objs, err := objstore.NewWithConfig(objstore.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return err
		}
		if err := objs.Init(ctx); err != nil {
			return err
		}
		objects = objs
	} else {
		log.Warn().Msg("no object store configured, upload endpoints disabled")
	}

	jobStore := jobs.NewStore()
	pool := jobs.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	defer pool.Close()

	c := chunker.NewWithConfig(chunker.ChunkerConfig{
		MaxChars:     cfg.Chunker.MaxChars,
		OverlapChars: cfg.Chunker.OverlapChars,
	})

	fetcher := fetch.NewWithConfig(fetch.FetcherConfig{
		RateLimit: cfg.Fetcher.RateLimit,
		Timeout:   time.Duration(cfg.Fetcher.Timeout) * time.Second,
	})

	orchestrator := ingest.New(ingest.OrchestratorConfig{}, jobStore, pool, &c, embedder, vectorStore, fetcher, objects)

	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		PresignTTL: time.Duration(cfg.ObjectStore.PresignTTL) * time.Second,
	}, jobStore, orchestrator, ranker, chat, objects, vectorStore)

	return srv.ListenAndServe()
}
