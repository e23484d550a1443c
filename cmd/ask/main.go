// Command ask answers a single question from the command line, talking
// directly to Cohere and Qdrant without going through the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/retriva/retriva/engine/rag"
	"github.com/retriva/retriva/engine/retrieve"
	"github.com/retriva/retriva/engine/semantic"
	"github.com/retriva/retriva/pkg/cohere"
	"github.com/retriva/retriva/pkg/fn"
)

func main() {
	var (
		topK       = flag.Int("k", 0, "number of documents to retrieve (0 uses the default)")
		budget     = flag.Int("budget", 0, "context budget in characters (0 uses the default)")
		cohereKey  = flag.String("cohere-key", os.Getenv("COHERE_API_KEY"), "Cohere API key")
		embedModel = flag.String("embed-model", "embed-english-v3.0", "Cohere embedding model")
		chatModel  = flag.String("chat-model", "command-r-plus", "Cohere chat model")
		dims       = flag.Int("dims", 1024, "embedding dimensionality")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "retriva", "Qdrant collection name")
		showSrc    = flag.Bool("sources", false, "print sources after the answer")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ask [flags] \"question\"")
		flag.PrintDefaults()
		os.Exit(2)
	}
	question := flag.Arg(0)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(question, *topK, *budget, *cohereKey, *embedModel, *chatModel, *dims, *qdrantAddr, *collection, *showSrc, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(question string, topK, budget int, cohereKey, embedModel, chatModel string, dims int, qdrantAddr, collection string, showSrc bool, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	model := cohere.New(cohere.Config{
		APIKey:     cohereKey,
		EmbedModel: embedModel,
		ChatModel:  chatModel,
	})

	vectors, err := semantic.New(qdrantAddr, collection, dims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	opts := rag.DefaultOptions()
	if budget > 0 {
		opts.ContextBudget = budget
	}
	pipeline := rag.New(retrieve.New(model, vectors, logger), model, opts, logger)

	// Transient upstream hiccups get a couple of retries before giving up.
	retry := fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 10 * time.Second, Jitter: true}
	result := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[*rag.Answer] {
		return fn.FromPair(pipeline.Ask(ctx, question, topK))
	})

	answer, err := result.Unwrap()
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if showSrc && len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			fmt.Printf("  %s  %s  (distance %.3f)\n", s.ID, s.Title, s.Distance)
		}
	}
	return nil
}
