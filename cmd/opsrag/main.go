// Command opsrag answers questions about local documentation using a local
// LLM. Documents are ingested into SQLite plus vector and keyword indexes,
// and served through an HTTP API with a built-in chat UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/embedding"
	"github.com/quokkadev/opsrag/internal/generation"
	"github.com/quokkadev/opsrag/internal/ingest"
	"github.com/quokkadev/opsrag/internal/keyword"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/retrieval"
	"github.com/quokkadev/opsrag/internal/server"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
	"github.com/quokkadev/opsrag/internal/watcher"
	"github.com/quokkadev/opsrag/pkg/utils"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "docs":
		err = runDocs(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version":
		fmt.Println("opsrag " + version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`opsrag - documentation Q&A over a local LLM

Usage:
  opsrag <command> [flags]

Commands:
  server    Start the HTTP server and chat UI
  ingest    Index files or directories
  ask       Ask a question from the terminal
  search    Keyword search over indexed chunks
  docs      List indexed documents
  delete    Remove a document by ID
  status    Show index statistics
  version   Print the version
  help      Show this help

Run "opsrag <command> -h" for command flags.
`)
}

// components holds everything the commands need, with a single close path.
type components struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Storage
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index
	ingestor *ingest.Ingestor
}

func initComponents(configPath string) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		store.Close()
		logger.Sync()
		return nil, err
	}

	vectors := vector.NewMemoryIndex(cfg.Storage.VectorIndexPath, cfg.Embedding.Dimensions)
	if err := vectors.Load(); err != nil {
		embedder.Close()
		store.Close()
		logger.Sync()
		return nil, err
	}

	keywords, err := keyword.OpenBleve(cfg.Storage.KeywordIndexPath)
	if err != nil {
		embedder.Close()
		store.Close()
		logger.Sync()
		return nil, err
	}

	ingestor := ingest.New(store, embedder, vectors, keywords, cfg.Ingest, logger)

	return &components{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		ingestor: ingestor,
	}, nil
}

func (c *components) close() {
	if err := c.vectors.Close(); err != nil {
		c.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	if err := c.keywords.Close(); err != nil {
		c.logger.Warn("failed to close keyword index", zap.Error(err))
	}
	if err := c.embedder.Close(); err != nil {
		c.logger.Warn("failed to close embedder", zap.Error(err))
	}
	if err := c.store.Close(); err != nil {
		c.logger.Warn("failed to close storage", zap.Error(err))
	}
	c.logger.Sync()
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	watch := fs.Bool("watch", false, "watch the data directory for changes")
	fs.Parse(args)

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	retriever := retrieval.New(c.store, c.embedder, c.vectors, c.cfg.Retrieval, c.logger)
	engine, err := generation.New(c.cfg.LLM, c.logger)
	if err != nil {
		return err
	}

	srv := server.New(c.cfg, c.store, c.ingestor, retriever, engine,
		c.vectors, c.keywords, c.logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watch || c.cfg.Watch.Enabled {
		if err := os.MkdirAll(c.cfg.Storage.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		w := watcher.New(c.cfg.Storage.DataDir, c.ingestor, c.store, c.logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				c.logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	fs.Parse(args)

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{c.cfg.Storage.DataDir}
	}

	ctx := context.Background()
	total := &ingest.Result{}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			res, err := c.ingestor.IngestDirectory(ctx, path)
			if err != nil {
				return err
			}
			total.Indexed += res.Indexed
			total.Skipped += res.Skipped
			total.Failed += res.Failed
			total.Chunks += res.Chunks
			continue
		}
		_, skipped, err := c.ingestor.IngestFile(ctx, path)
		switch {
		case err != nil:
			total.Failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", path, err)
		case skipped:
			total.Skipped++
		default:
			total.Indexed++
		}
	}
	if err := c.vectors.Save(); err != nil {
		return err
	}

	fmt.Printf("indexed %d, skipped %d, failed %d\n",
		total.Indexed, total.Skipped, total.Failed)
	return nil
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	docsFlag := fs.String("docs", "", "comma-separated document titles to restrict to")
	noStream := fs.Bool("no-stream", false, "print the answer all at once")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: opsrag ask [flags] <question>")
	}
	question := strings.Join(fs.Args(), " ")

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	var activeDocs []string
	if *docsFlag != "" {
		for _, d := range strings.Split(*docsFlag, ",") {
			if d = strings.TrimSpace(d); d != "" {
				activeDocs = append(activeDocs, d)
			}
		}
	}

	retriever := retrieval.New(c.store, c.embedder, c.vectors, c.cfg.Retrieval, c.logger)
	engine, err := generation.New(c.cfg.LLM, c.logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	chunks, err := retriever.Retrieve(ctx, question, activeDocs)
	if err != nil {
		return err
	}

	var resp *models.AskResponse
	if *noStream {
		r, err := engine.Answer(ctx, question, chunks)
		if err != nil {
			return err
		}
		fmt.Println(r.Answer)
		resp = r
	} else {
		r, err := engine.AnswerStream(ctx, question, chunks, func(token string) error {
			fmt.Print(token)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Println()
		resp = r
	}

	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range resp.Sources {
			fmt.Printf("  %s | page %d (%.2f)\n", s.Title, s.Page, s.Score)
		}
	}
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	limit := fs.Int("limit", 10, "maximum results")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: opsrag search [flags] <query>")
	}
	query := strings.Join(fs.Args(), " ")

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	hits, err := c.keywords.Search(query, *limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, h := range hits {
		fmt.Printf("%.3f  %s | page %d\n      %s\n",
			h.Score, h.Title, h.Page, utils.Truncate(h.Fragment, 160))
	}
	return nil
}

func runDocs(args []string) error {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	fs.Parse(args)

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	docs, err := c.store.ListDocuments(context.Background())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("no documents indexed")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %s (%d pages, updated %s)\n",
			d.ID, d.Title, d.Pages, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: opsrag delete <document-id>")
	}

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	id := fs.Arg(0)
	if err := c.ingestor.DeleteDocument(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("deleted", id)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	fs.Parse(args)

	c, err := initComponents(*configPath)
	if err != nil {
		return err
	}
	defer c.close()

	ctx := context.Background()
	docs, err := c.store.CountDocuments(ctx)
	if err != nil {
		return err
	}
	chunks, err := c.store.CountChunks(ctx)
	if err != nil {
		return err
	}
	usage := storage.DiskUsageBytes(
		c.cfg.Storage.DatabasePath,
		c.cfg.Storage.VectorIndexPath,
		c.cfg.Storage.KeywordIndexPath,
		c.cfg.Storage.DataDir,
	)

	fmt.Printf("documents:       %d\n", docs)
	fmt.Printf("chunks:          %d\n", chunks)
	fmt.Printf("vectors:         %d\n", c.vectors.Size())
	fmt.Printf("disk usage:      %.1f MiB\n", float64(usage)/(1<<20))
	fmt.Printf("embedding model: %s (%s)\n", c.cfg.Embedding.Model, c.cfg.Embedding.Provider)
	fmt.Printf("llm model:       %s\n", c.cfg.LLM.Model)
	return nil
}
