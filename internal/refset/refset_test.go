package refset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/config"
)

// keywordEmbedder produces deterministic axis-aligned vectors so tests can
// control similarity exactly: texts sharing a keyword are identical, others
// are orthogonal.
type keywordEmbedder struct{}

var testAxes = []string{"balance", "contribute", "tax", "penalty", "retire", "eligible"}

func (keywordEmbedder) embed(text string) []float32 {
	v := make([]float32, len(testAxes)+1)
	hit := false
	for i, kw := range testAxes {
		if strings.Contains(strings.ToLower(text), kw) {
			v[i] = 1
			hit = true
		}
	}
	if !hit {
		v[len(testAxes)] = 1
	}
	return v
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (keywordEmbedder) Dimension() int { return len(testAxes) + 1 }
func (keywordEmbedder) Close() error   { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.RefSetConfig{Collection: "test_refs"}, keywordEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewRequiresEmbedder(t *testing.T) {
	_, err := New(config.RefSetConfig{}, nil, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddValidatesExamples(t *testing.T) {
	s := newTestStore(t)

	err := s.Add(context.Background(), []Example{{Topic: "", Text: "no topic"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExample)

	err = s.Add(context.Background(), []Example{{Topic: "balance", Text: ""}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExample)

	assert.NoError(t, s.Add(context.Background(), nil))
	assert.Equal(t, 0, s.Count())
}

func TestSearchReturnsLabeledMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []Example{
		{Topic: "balance", Text: "what is my balance"},
		{Topic: "tax", Text: "how is my pension taxed"},
		{Topic: "eligibility", Text: "when am I eligible"},
	}))
	require.Equal(t, 3, s.Count())

	matches, err := s.Search(ctx, "show my balance please", 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	assert.Equal(t, "balance", matches[0].Topic)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
	if len(matches) > 1 {
		assert.Less(t, matches[1].Similarity, matches[0].Similarity)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := newTestStore(t)

	matches, err := s.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchCapsK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []Example{{Topic: "balance", Text: "my balance"}}))

	matches, err := s.Search(ctx, "balance", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSearchValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Search(context.Background(), "", 3)
	require.Error(t, err)

	_, err = s.Search(context.Background(), "query", 0)
	require.Error(t, err)
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx, DefaultExamples()))
	n := s.Count()
	require.Greater(t, n, 0)

	// Seeding again is a no-op.
	require.NoError(t, s.Seed(ctx, DefaultExamples()))
	assert.Equal(t, n, s.Count())
}

func TestDefaultExamplesAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, ex := range DefaultExamples() {
		assert.NotEmpty(t, ex.ID)
		assert.NotEmpty(t, ex.Topic)
		assert.NotEmpty(t, ex.Text)
		assert.False(t, seen[ex.ID], "duplicate id %s", ex.ID)
		seen[ex.ID] = true
	}
}
