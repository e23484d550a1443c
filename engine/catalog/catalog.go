// Package catalog tracks article metadata in Neo4j alongside the vector
// collection. Chunks live in the vector store; the catalog answers "what is
// in the corpus" questions without touching embeddings.
package catalog

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/retriva/retriva/engine/domain"
	"github.com/retriva/retriva/pkg/repo"
)

// Record is the catalog entry for one ingested article.
type Record struct {
	ID     string
	Source string
	Topic  string
	Title  string
	Chunks int
}

// Stats summarizes the corpus.
type Stats struct {
	Total    int64            `json:"total"`
	BySource map[string]int64 `json:"by_source"`
	ByTopic  map[string]int64 `json:"by_topic"`
}

// result mirrors the neo4j result surface used by Stats.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store is the Neo4j-backed article catalog.
type Store struct {
	driver     neo4j.DriverWithContext
	articles   *repo.Neo4jRepo[Record, string]
	newSession func(ctx context.Context) runner // for testing
}

// New creates a catalog Store over the given driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver:   driver,
		articles: repo.NewNeo4jRepo[Record, string](driver, "Article", recordToMap, recordFromNode),
	}
}

func recordToMap(r Record) map[string]any {
	return map[string]any{
		"id":     r.ID,
		"source": r.Source,
		"topic":  r.Topic,
		"title":  r.Title,
		"chunks": r.Chunks,
	}
}

func recordFromNode(rec *neo4j.Record) (Record, error) {
	val, ok := rec.Get("n")
	if !ok {
		return Record{}, fmt.Errorf("catalog: record missing node")
	}
	props, ok := val.(map[string]any)
	if !ok {
		if node, isNode := val.(neo4j.Node); isNode {
			props = node.Props
		} else {
			return Record{}, fmt.Errorf("catalog: unexpected node type %T", val)
		}
	}
	r := Record{
		ID:     stringProp(props, "id"),
		Source: stringProp(props, "source"),
		Topic:  stringProp(props, "topic"),
		Title:  stringProp(props, "title"),
	}
	if n, ok := props["chunks"].(int64); ok {
		r.Chunks = int(n)
	}
	return r, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// Save upserts the catalog entry for an article.
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("catalog: %w: missing id", domain.ErrInvalidArticle)
	}
	return s.articles.Save(ctx, r)
}

// Get returns one catalog entry by article id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.articles.Get(ctx, id)
}

// List returns catalog entries ordered by id.
func (s *Store) List(ctx context.Context, opts repo.ListOpts) ([]Record, error) {
	return s.articles.List(ctx, opts)
}

// Delete removes a catalog entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.articles.Delete(ctx, id)
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Stats returns corpus totals grouped by source and by topic.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	total, err := s.total(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("catalog: count: %w", err)
	}

	bySource, err := s.groupCount(ctx, "source")
	if err != nil {
		return Stats{}, fmt.Errorf("catalog: by source: %w", err)
	}
	byTopic, err := s.groupCount(ctx, "topic")
	if err != nil {
		return Stats{}, fmt.Errorf("catalog: by topic: %w", err)
	}

	return Stats{Total: total, BySource: bySource, ByTopic: byTopic}, nil
}

func (s *Store) total(ctx context.Context) (int64, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "MATCH (n:Article) RETURN count(n) AS total", nil)
	if err != nil {
		return 0, err
	}
	if !res.Next(ctx) {
		return 0, fmt.Errorf("no result")
	}
	val, ok := res.Record().Get("total")
	if !ok {
		return 0, fmt.Errorf("missing total")
	}
	n, ok := val.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", val)
	}
	return n, nil
}

func (s *Store) groupCount(ctx context.Context, prop string) (map[string]int64, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		"MATCH (n:Article) WHERE n.%s IS NOT NULL RETURN n.%s AS key, count(n) AS total ORDER BY total DESC",
		prop, prop,
	)
	res, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for res.Next(ctx) {
		rec := res.Record()
		key, ok := rec.Get("key")
		if !ok {
			continue
		}
		name, ok := key.(string)
		if !ok || name == "" {
			continue
		}
		if total, ok := rec.Get("total"); ok {
			if n, isInt := total.(int64); isInt {
				counts[name] = n
			}
		}
	}
	return counts, nil
}
