// Package ingest turns articles into searchable corpus entries: validation,
// sentence chunking, batch embedding, then vector and catalog storage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/retriva/retriva/engine/catalog"
	"github.com/retriva/retriva/engine/domain"
	"github.com/retriva/retriva/engine/semantic"
	"github.com/retriva/retriva/pkg/fn"
)

const (
	// ArticleSubject is the NATS subject for incoming articles.
	ArticleSubject = "corpus.articles"
	// DeleteSubject carries article ids whose chunks should be removed.
	DeleteSubject = "corpus.articles.delete"
	// DLQSubject receives articles that exhausted their retries.
	DLQSubject = "corpus.articles.dlq"
	// MaxRetries before an article is sent to the DLQ.
	MaxRetries = 3
	// EmbedBatchSize caps texts per embedding request (Cohere accepts 96).
	EmbedBatchSize = 96
)

// BatchEmbedder embeds document chunks in batches.
type BatchEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes chunk vectors. Satisfied by semantic.VectorStore.
type VectorUpserter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// CatalogSaver records article metadata. Satisfied by catalog.Store.
type CatalogSaver interface {
	Save(ctx context.Context, r catalog.Record) error
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Embedder BatchEmbedder
	Vectors  VectorUpserter
	Catalog  CatalogSaver
	// SkipExisting reports whether the article id is already in the corpus.
	// Nil disables deduplication.
	SkipExisting func(ctx context.Context, id string) (bool, error)
	Logger       *slog.Logger
}

// Validate rejects articles that fail domain validation.
var Validate fn.Stage[domain.Article, domain.Article] = func(_ context.Context, a domain.Article) fn.Result[domain.Article] {
	if err := domain.ValidateArticle(a); err != nil {
		return fn.Err[domain.Article](err)
	}
	return fn.Ok(a)
}

// Parse converts an article into a ParsedDoc with sentence boundaries.
var Parse fn.Stage[domain.Article, ParsedDoc] = func(_ context.Context, a domain.Article) fn.Result[ParsedDoc] {
	return fn.Ok(parsedDocFromArticle(a))
}

// ChunkDoc splits a ParsedDoc into embeddable chunks.
var ChunkDoc fn.Stage[ParsedDoc, ChunkedDoc] = func(_ context.Context, doc ParsedDoc) fn.Result[ChunkedDoc] {
	chunks := chunkSentences(doc.ID, doc.Sentences, DefaultChunkSize, DefaultOverlap)
	if len(chunks) == 0 {
		// Short bodies become a single chunk.
		chunks = []Chunk{{Text: doc.Body, Index: 0, DocID: doc.ID}}
	}
	return fn.Ok(ChunkedDoc{ParsedDoc: doc, Chunks: chunks})
}

// NewEmbed creates the embedding stage over a BatchEmbedder.
func NewEmbed(embedder BatchEmbedder) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		embeddings := make([][]float32, 0, len(doc.Chunks))

		for _, batch := range fn.Chunks(doc.Chunks, EmbedBatchSize) {
			texts := fn.Map(batch, func(c Chunk) string { return c.Text })

			vectors, err := embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed batch: %w: %w", domain.ErrEmbedding, err))
			}
			if len(vectors) != len(texts) {
				return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed batch: %w: got %d vectors for %d texts", domain.ErrEmbedding, len(vectors), len(texts)))
			}
			embeddings = append(embeddings, vectors...)
		}

		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates the storage stage that writes vectors to Qdrant and the
// article entry to the catalog.
func NewStore(vectors VectorUpserter, cat CatalogSaver) fn.Stage[EmbeddedDoc, string] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		records := make([]semantic.VectorRecord, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			records[i] = semantic.VectorRecord{
				ID:        PointID(doc.ID, chunk.Index),
				Embedding: doc.Embeddings[i],
				Payload: map[string]any{
					"doc_id":      doc.ID,
					"title":       doc.Title,
					"body":        chunk.Text,
					"source":      doc.Source,
					"topic":       doc.Topic,
					"url":         doc.URL,
					"chunk_index": chunk.Index,
				},
			}
		}
		if err := vectors.Upsert(ctx, records); err != nil {
			return fn.Err[string](fmt.Errorf("ingest: vector upsert: %w", err))
		}

		if cat != nil {
			entry := catalog.Record{
				ID:     doc.ID,
				Source: doc.Source,
				Topic:  doc.Topic,
				Title:  doc.Title,
				Chunks: len(doc.Chunks),
			}
			if err := cat.Save(ctx, entry); err != nil {
				return fn.Err[string](fmt.Errorf("ingest: catalog save: %w", err))
			}
		}

		return fn.Ok(doc.ID)
	}
}

// PointID derives a deterministic vector point id from the article id and
// chunk index, so re-ingesting an article overwrites its old points.
func PointID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s-%d", docID, chunkIndex)).String()
}

// LoggedTap returns a pass-through stage that logs entry and exit duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(_ context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline wires validate, parse, chunk, embed, and store into one stage.
func NewPipeline(deps Deps) fn.Stage[domain.Article, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[domain.Article]("validate", log), Validate)
	parsed := fn.Then(validated, fn.Then(LoggedTap[domain.Article]("parse", log), Parse))
	chunked := fn.Then(parsed, fn.Then(LoggedTap[ParsedDoc]("chunk", log), ChunkDoc))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), NewEmbed(deps.Embedder)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log), NewStore(deps.Vectors, deps.Catalog)))
	return fn.TracedStage("ingest.pipeline", stored)
}

// dlqMessage is published to the DLQ after the last retry fails.
type dlqMessage struct {
	Article domain.Article `json:"article"`
	Error   string         `json:"error"`
	Retries int            `json:"retries"`
}

// StartConsumer subscribes to the article subject and runs each message
// through the ingestion pipeline, re-publishing failures with a bumped retry
// count until MaxRetries, then routing them to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(ArticleSubject, func(msg *nats.Msg) {
		var article domain.Article
		if err := json.Unmarshal(msg.Data, &article); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		if deps.SkipExisting != nil {
			exists, err := deps.SkipExisting(ctx, article.ID)
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err, "article_id", article.ID)
			} else if exists {
				log.Info("ingest: skipping duplicate", "article_id", article.ID)
				if msg.Reply != "" {
					_ = msg.Ack()
				}
				return
			}
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, article)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"article_id", article.ID,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Article: article, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(ArticleSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			docID, _ := result.Unwrap()
			log.Info("ingest: success", "article_id", docID)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
