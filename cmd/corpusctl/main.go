package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/internal/types"
	"github.com/substratehq/corpus/pkg/chunker"
	"github.com/substratehq/corpus/pkg/config"
	"github.com/substratehq/corpus/pkg/fetch"
	"github.com/substratehq/corpus/pkg/llm"
	"github.com/substratehq/corpus/pkg/rank"
	"github.com/substratehq/corpus/pkg/store"
)

const embedBatchSize = 32

type Options struct {
	ConfigPath string
	Text       string
	File       string
	URL        string
	Title      string
	ExternalID string
	Owner      string
	Question   string
	K          int
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Options {
	var opts Options

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&opts.Text, "text", "", "Raw text to ingest")
	flag.StringVar(&opts.File, "file", "", "Text file to ingest")
	flag.StringVar(&opts.URL, "url", "", "URL to fetch and ingest")
	flag.StringVar(&opts.Title, "title", "", "Document title")
	flag.StringVar(&opts.ExternalID, "id", "", "External document id (re-ingest replaces chunks)")
	flag.StringVar(&opts.Owner, "owner", models.OwnerPublic, "Owning tenant")
	flag.StringVar(&opts.Question, "query", "", "Question to ask")
	flag.IntVar(&opts.K, "k", 5, "Number of contexts to retrieve")
	flag.Parse()

	return opts
}

func run(opts Options) error {
	godotenv.Load()

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

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

	if err := vectorStore.Init(ctx); err != nil {
		return err
	}

	var embedder *llm.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			VectorDim: cfg.Embedding.VectorDim,
			RateLimit: cfg.Embedding.RateLimit,
		})
		if err != nil {
			return err
		}
	} else {
		color.Yellow("No embedding provider configured, running keyword-only")
	}

	switch {
	case opts.Text != "" || opts.File != "" || opts.URL != "":
		return ingest(ctx, cfg, opts, vectorStore, embedder)
	case opts.Question != "":
		return query(ctx, opts, vectorStore, embedder)
	default:
		return fmt.Errorf("nothing to do: pass -text, -file, -url or -query")
	}
}

func ingest(ctx context.Context, cfg *config.Config, opts Options, vectorStore *store.VectorStore, embedder *llm.Embedder) error {
	title := opts.Title
	var text string

	switch {
	case opts.Text != "":
		text = opts.Text
	case opts.File != "":
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return err
		}
		text = string(data)
		if title == "" {
			title = opts.File
		}
	default:
		color.Cyan("Fetching %s", opts.URL)
		fetcher := fetch.NewWithConfig(fetch.FetcherConfig{
			RateLimit: cfg.Fetcher.RateLimit,
			Timeout:   time.Duration(cfg.Fetcher.Timeout) * time.Second,
		})
		fetchedTitle, fetched, err := fetcher.Fetch(ctx, opts.URL)
		if err != nil {
			return err
		}
		text = fetched
		if title == "" {
			title = fetchedTitle
		}
	}

	c := chunker.NewWithConfig(chunker.ChunkerConfig{
		MaxChars:     cfg.Chunker.MaxChars,
		OverlapChars: cfg.Chunker.OverlapChars,
	})

	texts := c.Split(text)
	if len(texts) == 0 {
		return fmt.Errorf("no text to ingest")
	}

	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Ordinal: i, Text: t}
	}

	if embedder != nil {
		bar := progressbar.Default(int64(len(texts)), "embedding")
		for start := 0; start < len(texts); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(texts) {
				end = len(texts)
			}

			vectors, err := embedder.Embed(ctx, texts[start:end])
			if err != nil {
				return err
			}
			for i, v := range vectors {
				chunks[start+i].Vector = v
			}
			bar.Add(end - start)
		}
	}

	docID, err := vectorStore.UpsertDocument(ctx, models.Document{
		ExternalID: opts.ExternalID,
		Title:      title,
		Source:     sourceTag(opts),
		Owner:      opts.Owner,
	})
	if err != nil {
		return err
	}

	if err := vectorStore.InsertChunks(ctx, docID, chunks); err != nil {
		return err
	}

	color.Green("Ingested %d chunks into document %s", len(chunks), docID)
	return nil
}

func query(ctx context.Context, opts Options, vectorStore *store.VectorStore, embedder *llm.Embedder) error {
	var ranker types.Ranker
	if embedder != nil {
		ranker = rank.NewHybridRanker(embedder, vectorStore)
	} else {
		ranker = rank.NewKeywordOnlyRanker(vectorStore)
	}

	contexts, err := ranker.Rank(ctx, opts.Question, opts.K, opts.Owner)
	if err != nil {
		return err
	}

	if len(contexts) == 0 {
		color.Yellow("No results")
		return nil
	}

	for i, c := range contexts {
		color.Cyan("%d. %s  (vscore=%.3f kws=%.0f)", i+1, c.Title, c.VScore, c.KWScore)
		fmt.Println(c.Preview)
		fmt.Println()
	}

	return nil
}

func sourceTag(opts Options) string {
	switch {
	case opts.URL != "":
		return "url"
	case opts.File != "":
		return "file"
	default:
		return "text"
	}
}
