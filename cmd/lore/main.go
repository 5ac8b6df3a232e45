package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	lore "github.com/maretho/lore"
	"github.com/maretho/lore/embed"
	"github.com/maretho/lore/extract"
	"github.com/maretho/lore/fetch"
	"github.com/maretho/lore/ingest"
	"github.com/maretho/lore/internal/config"
	"github.com/maretho/lore/observer"
	"github.com/maretho/lore/provider/openaicompat"
	"github.com/maretho/lore/store/postgres"
	"github.com/maretho/lore/store/sqlite"
)

const usage = `lore - personal knowledge base

Usage:
  lore ingest <url-or-path>   fetch, chunk, embed and graph a document
  lore reingest [id]          reprocess one document, or all with no id
  lore status <id>            show a document's ingestion status
  lore query <text>           hybrid retrieval: chunks + graph context
  lore list                   list documents
  lore delete <id>            delete a document and its derived data
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load(os.Getenv("LORE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer app.close(ctx)

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal(err)
	}
}

type app struct {
	cfg       config.Config
	store     lore.Store
	ingestor  *ingest.Ingestor
	retriever lore.Retriever
	fetcher   *fetch.Fetcher
	inst      *observer.Instruments
	shutdown  func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("init observer: %w", err)
		}
		a.inst = inst
		a.shutdown = shutdown
	}

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := postgres.New(pool,
			postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := pg.Init(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.store = pg
		a.shutdown = chain(a.shutdown, func(context.Context) error { pool.Close(); return nil })
	default:
		st := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		a.store = st
		a.shutdown = chain(a.shutdown, func(context.Context) error { return st.Close() })
	}

	var embedding lore.EmbeddingProvider = openaicompat.NewEmbeddingProvider(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)
	var cacheStore lore.CacheStore = a.store
	if a.inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, a.inst)
		cacheStore = observer.WrapCacheStore(a.store, a.inst)
	}

	embedder := embed.NewOrchestrator(cacheStore, embedding, cfg.Embedding.Model,
		embed.WithBatchSize(cfg.Embedding.BatchSize),
		embed.WithConcurrency(cfg.Embedding.Concurrency),
		embed.WithLogger(logger))

	chat := openaicompat.NewProvider(cfg.Chat.APIKey, cfg.Chat.Model, cfg.Chat.BaseURL)
	chunker := ingest.NewChunker(
		ingest.WithTargetTokens(cfg.Chunking.TargetTokens),
		ingest.WithMinTokens(cfg.Chunking.MinTokens),
		ingest.WithMaxTokens(cfg.Chunking.MaxTokens))

	a.ingestor = ingest.NewIngestor(a.store, embedder, cfg.Embedding.Model,
		ingest.WithChunker(chunker),
		ingest.WithSummarizer(extract.NewSummarizer(chat)),
		ingest.WithExtractor(extract.NewExtractor(chat)),
		ingest.WithIngestLogger(logger))

	a.retriever = lore.NewGraphRetriever(a.store, embedder,
		lore.WithNeighborFanOut(cfg.Retrieval.NeighborFanOut),
		lore.WithRetrieverLogger(logger))
	if a.inst != nil {
		a.retriever = observer.WrapRetriever(a.retriever, a.inst)
	}

	a.fetcher = fetch.NewFetcher()
	return a, nil
}

func chain(first, second func(context.Context) error) func(context.Context) error {
	if first == nil {
		return second
	}
	return func(ctx context.Context) error {
		err := second(ctx)
		if ferr := first(ctx); ferr != nil && err == nil {
			err = ferr
		}
		return err
	}
}

func (a *app) close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "ingest":
		return a.cmdIngest(ctx, args)
	case "reingest":
		return a.cmdReingest(ctx, args)
	case "status":
		return a.cmdStatus(ctx, args)
	case "query":
		return a.cmdQuery(ctx, args)
	case "list":
		return a.cmdList(ctx)
	case "delete":
		return a.cmdDelete(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) cmdIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	title := fs.String("title", "", "override the document title")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lore ingest [-title t] <url-or-path>")
	}
	target := fs.Arg(0)

	var (
		result fetch.Result
		err    error
	)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		result, err = a.fetcher.FromURL(ctx, target)
	} else {
		result, err = fetch.FromFile(target)
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", target, err)
	}
	if *title != "" {
		result.Title = *title
	}

	doc, err := a.ingestor.Ingest(ctx, result.Title, target, result.Content)
	if err != nil {
		return err
	}
	if a.inst != nil {
		a.inst.DocumentsIngested.Add(ctx, 1)
	}
	fmt.Printf("%s  %s  %s\n", doc.ID, doc.Status, doc.Title)
	return nil
}

func (a *app) cmdReingest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.ingestor.ReingestAll(ctx)
	}
	doc, err := a.ingestor.Reingest(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %s\n", doc.ID, doc.Status, doc.Title)
	return nil
}

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: lore status <id>")
	}
	status, err := a.ingestor.Status(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func (a *app) cmdQuery(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lore query <text>")
	}
	query := strings.Join(args, " ")

	result, err := a.retriever.Retrieve(ctx, query, a.cfg.Retrieval.TopK)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (a *app) cmdList(ctx context.Context) error {
	docs, err := a.store.ListDocuments(ctx, 0)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Printf("%s  %-10s  %s\n", d.ID, d.Status, d.Title)
	}
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: lore delete <id>")
	}
	return a.store.DeleteDocument(ctx, args[0])
}
