// Package refset stores the labeled reference queries used for semantic
// topic matching. Each reference example is a short member question with a
// known topic; incoming queries are matched against the set by embedding
// similarity.
package refset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/config"
	"github.com/fyrsmithlabs/pensiond/internal/embeddings"
)

var refsetTracer = otel.Tracer("pensiond.refset")

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid refset configuration")

	// ErrInvalidExample indicates a reference example missing topic or text.
	ErrInvalidExample = errors.New("invalid reference example")
)

// Example is a labeled reference query.
type Example struct {
	// ID uniquely identifies the example. Auto-generated when empty.
	ID string
	// Topic is the label assigned to queries matching this example.
	Topic string
	// Text is the reference query text.
	Text string
}

// Match is a reference example scored against an incoming query.
type Match struct {
	Topic      string
	Text       string
	Similarity float32
}

// Store holds the reference set in an embedded chromem collection.
type Store struct {
	db       *chromem.DB
	embedder embeddings.Provider
	cfg      config.RefSetConfig
	logger   *zap.Logger

	mu         sync.Mutex
	collection *chromem.Collection
}

// New creates a reference set store. An empty Path selects an in-memory
// database (tests and ephemeral deployments); otherwise the set persists
// under the configured directory.
func New(cfg config.RefSetConfig, embedder embeddings.Provider, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "reference_queries"
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, perr := expandPath(cfg.Path)
		if perr != nil {
			return nil, fmt.Errorf("expanding path: %w", perr)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}
	s.collection = collection

	logger.Info("reference set initialized",
		zap.String("collection", cfg.Collection),
		zap.String("path", cfg.Path),
		zap.Int("examples", collection.Count()),
	)

	return s, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Add inserts labeled examples into the reference set.
func (s *Store) Add(ctx context.Context, examples []Example) error {
	ctx, span := refsetTracer.Start(ctx, "refset.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("example_count", len(examples)))

	if len(examples) == 0 {
		return nil
	}

	texts := make([]string, len(examples))
	for i, ex := range examples {
		if ex.Topic == "" || ex.Text == "" {
			err := fmt.Errorf("%w: example at index %d missing topic or text", ErrInvalidExample, i)
			span.RecordError(err)
			return err
		}
		texts[i] = ex.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding reference examples: %w", err)
	}

	docs := make([]chromem.Document, len(examples))
	for i, ex := range examples {
		id := ex.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   ex.Text,
			Metadata:  map[string]string{"topic": ex.Topic},
			Embedding: vectors[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Concurrency of 1 since embeddings are precomputed.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding reference examples: %w", err)
	}

	s.logger.Debug("added reference examples", zap.Int("count", len(examples)))
	return nil
}

// Seed populates the store with the given examples only when it is empty.
func (s *Store) Seed(ctx context.Context, examples []Example) error {
	if s.Count() > 0 {
		return nil
	}
	return s.Add(ctx, examples)
}

// Search returns the k nearest reference examples by cosine similarity,
// best first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := refsetTracer.Start(ctx, "refset.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= doc count
	count := s.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying reference set: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Topic:      r.Metadata["topic"],
			Text:       r.Content,
			Similarity: r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count returns the number of reference examples in the store.
func (s *Store) Count() int {
	return s.collection.Count()
}
