// Package main implements the retriva API server: question answering over
// the article corpus, article submission, and corpus statistics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/retriva/retriva/engine/catalog"
	"github.com/retriva/retriva/engine/domain"
	"github.com/retriva/retriva/engine/ingest"
	"github.com/retriva/retriva/engine/prompt"
	"github.com/retriva/retriva/engine/rag"
	"github.com/retriva/retriva/engine/retrieve"
	"github.com/retriva/retriva/engine/semantic"
	"github.com/retriva/retriva/pkg/cohere"
	"github.com/retriva/retriva/pkg/metrics"
	"github.com/retriva/retriva/pkg/mid"
	"github.com/retriva/retriva/pkg/natsutil"
	"github.com/retriva/retriva/pkg/repo"
	"github.com/retriva/retriva/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	CohereBaseURL string
	CohereKey     string
	EmbedModel    string
	ChatModel     string
	QdrantURL     string
	Collection    string
	VectorDims    int
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	NATSURL       string
	CORSOrigin    string
	TopK          int
	ContextBudget int
	RatePerSec    float64
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		CohereBaseURL: envOr("COHERE_BASE_URL", cohere.DefaultBaseURL),
		CohereKey:     os.Getenv("COHERE_API_KEY"),
		EmbedModel:    envOr("EMBED_MODEL", "embed-english-v3.0"),
		ChatModel:     envOr("CHAT_MODEL", "command-r-plus"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "retriva"),
		VectorDims:    envIntOr("VECTOR_DIMS", 1024),
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		NATSURL:       envOr("NATS_URL", nats.DefaultURL),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		TopK:          envIntOr("TOP_K", domain.DefaultTopK),
		ContextBudget: envIntOr("CONTEXT_BUDGET", prompt.DefaultBudget),
		RatePerSec:    float64(envIntOr("RATE_PER_SEC", 20)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var met = metrics.New()

var (
	mQuestions = met.Counter("retriva_questions_total", "Questions received")
	mAnswers   = func(status string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("retriva_answers_total", "status", status), "Answers by outcome")
	}
	mAskErrors = met.Counter("retriva_ask_errors_total", "Failed ask requests")
	mAskDur    = met.Histogram("retriva_ask_duration_seconds", "End-to-end ask latency", nil)
	mSubmitted = met.Counter("retriva_articles_submitted_total", "Articles queued for ingestion")
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Cohere client ---
	model := cohere.New(cohere.Config{
		BaseURL:    cfg.CohereBaseURL,
		APIKey:     cfg.CohereKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
		RatePerSec: 10,
		Burst:      5,
	})

	// --- Qdrant ---
	vectors, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.VectorDims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	// --- Neo4j catalog ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	cat := catalog.New(driver)

	// --- NATS for article submission (optional) ---
	var nc *nats.Conn
	if conn, err := nats.Connect(cfg.NATSURL); err != nil {
		logger.Warn("nats unavailable, article submission disabled", "err", err)
	} else {
		nc = conn
		defer nc.Close()
	}

	// --- RAG pipeline ---
	retriever := retrieve.New(model, vectors, logger)
	opts := rag.DefaultOptions()
	opts.TopK = cfg.TopK
	opts.ContextBudget = cfg.ContextBudget
	pipeline := rag.New(retriever, model, opts, logger)

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/ask", handleAsk(pipeline, breaker, logger))
	mux.HandleFunc("POST /api/articles", handleSubmit(nc, logger))
	mux.HandleFunc("DELETE /api/articles/{id}", handleDelete(nc, logger))
	mux.HandleFunc("GET /api/articles", handleList(cat, logger))
	mux.HandleFunc("GET /api/stats", handleStats(cat, logger))
	mux.Handle("GET /metrics", met.Handler())

	throttle := resilience.NewLimiter(resilience.LimiterOpts{
		Rate:  cfg.RatePerSec,
		Burst: int(cfg.RatePerSec),
	})

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.Throttle(throttle),
		mid.OTel("retriva-server"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// AskResponse is the JSON response for POST /api/ask.
type AskResponse struct {
	Answer  string       `json:"answer"`
	Status  string       `json:"status"`
	Sources []rag.Source `json:"sources,omitempty"`
}

func handleAsk(pipeline *rag.Pipeline, breaker *resilience.Breaker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		if req.TopK < 0 || req.TopK > domain.MaxTopK {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", domain.MaxTopK))
			return
		}

		mQuestions.Inc()
		start := time.Now()

		var answer *rag.Answer
		err := breaker.Call(r.Context(), func(ctx context.Context) error {
			var askErr error
			answer, askErr = pipeline.Ask(ctx, req.Question, req.TopK)
			return askErr
		})
		mAskDur.Since(start)

		if err != nil {
			mAskErrors.Inc()
			status, msg := askErrorStatus(err)
			if status >= http.StatusInternalServerError {
				logger.Error("ask failed", "err", err)
			}
			writeError(w, status, msg)
			return
		}

		mAnswers(string(answer.Status)).Inc()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AskResponse{
			Answer:  answer.Text,
			Status:  string(answer.Status),
			Sources: answer.Sources,
		})
	}
}

// askErrorStatus maps pipeline failures to HTTP statuses. Validation
// problems are the caller's fault; everything else is an upstream outage.
func askErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion), errors.Is(err, domain.ErrTopKOutOfRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, domain.ErrRetrievalUnavailable), errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusBadGateway, "upstream unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func handleSubmit(nc *nats.Conn, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if nc == nil {
			writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
			return
		}

		var article domain.Article
		if err := json.NewDecoder(r.Body).Decode(&article); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := domain.ValidateArticle(article); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := natsutil.Publish(r.Context(), nc, ingest.ArticleSubject, article); err != nil {
			logger.Error("article publish failed", "err", err, "article_id", article.ID)
			writeError(w, http.StatusBadGateway, "queue publish failed")
			return
		}

		mSubmitted.Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued", "id": article.ID})
	}
}

func handleDelete(nc *nats.Conn, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if nc == nil {
			writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
			return
		}

		id := r.PathValue("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "article id is required")
			return
		}

		if err := natsutil.Publish(r.Context(), nc, ingest.DeleteSubject, id); err != nil {
			logger.Error("delete publish failed", "err", err, "article_id", id)
			writeError(w, http.StatusBadGateway, "queue publish failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued", "id": id})
	}
}

func handleList(cat *catalog.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		records, err := cat.List(r.Context(), repo.ListOpts{Offset: offset, Limit: limit})
		if err != nil {
			logger.Error("catalog list failed", "err", err)
			writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"articles": records})
	}
}

func handleStats(cat *catalog.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := cat.Stats(r.Context())
		if err != nil {
			logger.Error("stats query failed", "err", err)
			writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
