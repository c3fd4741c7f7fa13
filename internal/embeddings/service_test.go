package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid configuration",
			baseURL: "http://localhost:8080",
		},
		{
			name:    "empty base URL",
			baseURL: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(Config{
				BaseURL: tt.baseURL,
				Model:   "BAAI/bge-small-en-v1.5",
			}, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
		})
	}
}

func newTEITestServer(t *testing.T, vectors [][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestServiceEmbedQuery(t *testing.T) {
	server := newTEITestServer(t, [][]float32{{0.1, 0.2, 0.3}})
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Model: "test"}, zap.NewNop())
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "how much can I contribute this year")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestServiceEmbedQueryEmptyText(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:8080"}, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceEmbedDocuments(t *testing.T) {
	server := newTEITestServer(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}})
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Model: "test"}, zap.NewNop())
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestServiceEmbedDocumentsEmpty(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:8080"}, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Model: "test"}, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
