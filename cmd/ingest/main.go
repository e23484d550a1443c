// Command ingest feeds articles into the corpus. It watches a directory for
// JSON article files, consumes the NATS article subject, and handles
// deletion requests, writing chunks to Qdrant and metadata to Neo4j.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/retriva/retriva/engine/catalog"
	"github.com/retriva/retriva/engine/domain"
	"github.com/retriva/retriva/engine/ingest"
	"github.com/retriva/retriva/engine/semantic"
	"github.com/retriva/retriva/pkg/cohere"
	"github.com/retriva/retriva/pkg/fn"
	"github.com/retriva/retriva/pkg/metrics"
	"github.com/retriva/retriva/pkg/natsutil"
)

var met = metrics.New()

var (
	mArticlesTotal = func(source string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("retriva_ingest_articles_total", "source", source), "Articles ingested")
	}
	mErrorsTotal = func(stage string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("retriva_ingest_errors_total", "stage", stage), "Ingestion errors")
	}
	mSkipped        = met.Counter("retriva_ingest_articles_skipped_total", "Articles skipped by dedup")
	mDeleted        = met.Counter("retriva_ingest_articles_deleted_total", "Articles removed on request")
	mFilesProcessed = met.Counter("retriva_ingest_files_processed_total", "Files processed")
	mActiveDocs     = met.Gauge("retriva_ingest_active_articles", "Articles currently in the pipeline")
	mLastScan       = met.Gauge("retriva_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mPipelineDur    = met.Histogram("retriva_ingest_pipeline_duration_seconds", "Per-article pipeline time", nil)
)

func main() {
	var (
		dataDir    = flag.String("dir", "/var/lib/retriva/articles", "directory to watch for JSON article files")
		cohereKey  = flag.String("cohere-key", os.Getenv("COHERE_API_KEY"), "Cohere API key")
		embedModel = flag.String("embed-model", "embed-english-v3.0", "Cohere embedding model")
		dims       = flag.Int("dims", 1024, "embedding dimensionality")
		neo4jURL   = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "retriva", "Qdrant collection name")
		natsURL    = flag.String("nats", nats.DefaultURL, "NATS server URL (empty disables the consumer)")
		workers    = flag.Int("workers", 4, "concurrent articles per file")
		interval   = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile  = flag.String("state", "", "processed-files state path (defaults to <dir>/.ingest-state.json)")
		metricsOn  = flag.String("metrics-addr", ":9091", "metrics listen address (empty disables)")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *stateFile == "" {
		*stateFile = filepath.Join(*dataDir, ".ingest-state.json")
	}

	if *metricsOn != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", met.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsOn, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	cat := catalog.New(driver)
	log.Info("connected to Neo4j")

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection, *dims)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *dims)

	// Cohere embedder
	embedder := cohere.New(cohere.Config{
		APIKey:     *cohereKey,
		EmbedModel: *embedModel,
		RatePerSec: 5,
		Burst:      2,
	})
	log.Info("using Cohere embeddings", "model", *embedModel)

	// In-process dedup on top of the catalog.
	var mu sync.Mutex
	seen := make(map[string]bool)

	deps := ingest.Deps{
		Embedder: embedder,
		Vectors:  vs,
		Catalog:  cat,
		SkipExisting: func(_ context.Context, id string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				mSkipped.Inc()
				return true, nil
			}
			seen[id] = true
			return false, nil
		},
		Logger: log,
	}

	pipeline := ingest.NewPipeline(deps)

	// NATS consumer for queued articles and deletion requests.
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Warn("nats connect failed, directory watcher only", "error", err)
		} else {
			defer nc.Close()
			sub, err := ingest.StartConsumer(nc, deps)
			if err != nil {
				log.Error("consumer start failed", "error", err)
				os.Exit(1)
			}
			defer sub.Unsubscribe()

			delSub, err := natsutil.Subscribe(nc, ingest.DeleteSubject, func(ctx context.Context, id string) {
				if err := vs.DeleteByDocID(ctx, id); err != nil {
					mErrorsTotal("delete").Inc()
					log.Error("vector delete failed", "error", err, "article_id", id)
					return
				}
				if err := cat.Delete(ctx, id); err != nil {
					log.Warn("catalog delete failed", "error", err, "article_id", id)
				}
				mu.Lock()
				delete(seen, id)
				mu.Unlock()
				mDeleted.Inc()
				log.Info("article deleted", "article_id", id)
			})
			if err != nil {
				log.Error("delete subscriber failed", "error", err)
				os.Exit(1)
			}
			defer delSub.Unsubscribe()
			log.Info("consuming articles", "subject", ingest.ArticleSubject)
		}
	}

	processed := loadState(*stateFile)
	os.MkdirAll(*dataDir, 0o755)
	log.Info("watching for article files", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			mErrorsTotal("scan").Inc()
			log.Error("readdir failed", "error", err)
			return
		}

		jsonFiles := fn.Filter(entries, func(e os.DirEntry) bool {
			return !e.IsDir() && strings.HasSuffix(e.Name(), ".json") && e.Name()[0] != '.'
		})

		for _, e := range jsonFiles {
			info, err := e.Info()
			if err != nil {
				continue
			}
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
			if processed[key] {
				continue
			}

			path := filepath.Join(*dataDir, e.Name())
			log.Info("processing file", "file", e.Name())
			count, errs := processFile(ctx, path, pipeline, *workers)
			log.Info("file done", "file", e.Name(), "ingested", count, "errors", errs)
			mFilesProcessed.Inc()

			// Files with errors are retried on the next scan.
			if errs == 0 {
				processed[key] = true
				saveState(*stateFile, processed)
			} else {
				log.Warn("file had errors, will retry", "file", e.Name(), "errors", errs)
			}
		}
	}

	scan()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

// processFile decodes a stream or array of articles from a JSON file and
// runs them through the pipeline with bounded concurrency.
func processFile(ctx context.Context, path string, pipeline fn.Stage[domain.Article, string], workers int) (int, int) {
	articles, err := readArticles(path)
	if err != nil {
		slog.Default().Error("read file failed", "file", path, "error", err)
		return 0, 1
	}

	results := fn.ParMapResult(articles, workers, func(a domain.Article) fn.Result[string] {
		if ctx.Err() != nil {
			return fn.Err[string](ctx.Err())
		}
		mActiveDocs.Inc()
		start := time.Now()
		result := pipeline(ctx, a)
		mPipelineDur.Since(start)
		mActiveDocs.Dec()
		return result
	})

	count, errs := 0, 0
	log := slog.Default()
	for i, r := range results {
		if _, err := r.Unwrap(); err != nil {
			log.Error("pipeline error", "article_id", articles[i].ID, "error", err)
			mErrorsTotal("pipeline").Inc()
			errs++
		} else {
			mArticlesTotal(articles[i].Source).Inc()
			count++
		}
	}
	return count, errs
}

// readArticles accepts either a JSON array of articles or a stream of
// concatenated article objects.
func readArticles(path string) ([]domain.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	if err := json.Unmarshal(data, &articles); err == nil {
		return articles, nil
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	for dec.More() {
		var a domain.Article
		if err := dec.Decode(&a); err != nil {
			return articles, err
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
