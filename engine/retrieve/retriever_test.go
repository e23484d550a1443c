package retrieve

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/retriva/retriva/engine/domain"
)

// --- mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

type mockStore struct {
	matches []domain.ScoredMatch
	err     error
	lastK   int
}

func (m *mockStore) Nearest(_ context.Context, _ []float32, k int) ([]domain.ScoredMatch, error) {
	m.lastK = k
	return m.matches, m.err
}

// slowStore blocks until its context is done, mimicking an unreachable store.
type slowStore struct{}

func (slowStore) Nearest(ctx context.Context, _ []float32, _ int) ([]domain.ScoredMatch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func doc(id string) domain.Document {
	return domain.Document{ID: id, Title: "t-" + id, Body: "b-" + id}
}

// --- tests ---

func TestRetrieve_OrderedAndBounded(t *testing.T) {
	store := &mockStore{matches: []domain.ScoredMatch{
		{Document: doc("1"), Distance: 0.10},
		{Document: doc("2"), Distance: 0.25},
		{Document: doc("3"), Distance: 0.25},
	}}
	r := New(&mockEmbedder{vector: []float32{0.1, 0.2}}, store, nil)

	matches, err := r.Retrieve(context.Background(), "explain thermodynamic expansion", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) > 3 {
		t.Fatalf("got %d matches, want at most 3", len(matches))
	}
	if !domain.Sorted(matches) {
		t.Error("matches not in non-decreasing distance order")
	}
	if store.lastK != 3 {
		t.Errorf("store asked for k=%d, want 3", store.lastK)
	}
	// Equal distances keep input order.
	if matches[1].Document.ID != "2" || matches[2].Document.ID != "3" {
		t.Errorf("tie order not preserved: %v", matches)
	}
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	r := New(&mockEmbedder{vector: []float32{0.1}}, &mockStore{}, nil)

	matches, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("empty corpus must not error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty result, got %d", len(matches))
	}
}

func TestRetrieve_InvalidInput(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{0.1}}
	r := New(emb, &mockStore{}, nil)

	if _, err := r.Retrieve(context.Background(), "   ", 3); !errors.Is(err, domain.ErrEmptyQuestion) {
		t.Errorf("blank question: got %v, want ErrEmptyQuestion", err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 0); !errors.Is(err, domain.ErrTopKOutOfRange) {
		t.Errorf("k=0: got %v, want ErrTopKOutOfRange", err)
	}
	if _, err := r.Retrieve(context.Background(), "q", domain.MaxTopK+1); !errors.Is(err, domain.ErrTopKOutOfRange) {
		t.Errorf("k too large: got %v, want ErrTopKOutOfRange", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times on invalid input, want 0", emb.calls)
	}
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	r := New(&mockEmbedder{err: fmt.Errorf("model not loaded")}, &mockStore{}, nil)

	_, err := r.Retrieve(context.Background(), "question", 3)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("got %v, want ErrEmbedding", err)
	}
}

func TestRetrieve_StoreUnavailable(t *testing.T) {
	r := New(&mockEmbedder{vector: []float32{0.1}}, &mockStore{err: fmt.Errorf("connection refused")}, nil)

	_, err := r.Retrieve(context.Background(), "question", 3)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("got %v, want ErrRetrievalUnavailable", err)
	}
}

func TestRetrieve_StoreTimeout(t *testing.T) {
	r := New(&mockEmbedder{vector: []float32{0.1}}, slowStore{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Retrieve(ctx, "question", 3)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("got %v, want ErrRetrievalUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestRetrieve_DimensionMismatchPassthrough(t *testing.T) {
	store := &mockStore{err: fmt.Errorf("query has 3 dims, collection has 1024: %w", domain.ErrDimensionMismatch)}
	r := New(&mockEmbedder{vector: []float32{0.1, 0.2, 0.3}}, store, nil)

	_, err := r.Retrieve(context.Background(), "question", 3)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
	if errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Error("dimension mismatch must not be downgraded to unavailable")
	}
}
