package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "with request ID",
			ctx:      WithRequestID(context.Background(), "test-id-123"),
			expected: "test-id-123",
		},
		{
			name:     "without request ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with invalid type in context",
			ctx:      context.WithValue(context.Background(), RequestIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromContext(tt.ctx))
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"uuid", uuid.NewString(), true},
		{"opaque token", "req_01HF7-abc.def", true},
		{"empty", "", false},
		{"space", "abc def", false},
		{"newline injection", "abc\nlevel=ERROR", false},
		{"non ascii", "réq", false},
		{"too long", strings.Repeat("a", 129), false},
		{"max length", strings.Repeat("a", 128), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.id))
		})
	}
}

func serve(t *testing.T, header string) (captured string, rec *httptest.ResponseRecorder) {
	t.Helper()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return captured, rec
}

func TestMiddleware_PropagatesExistingID(t *testing.T) {
	captured, rec := serve(t, "existing-request-id-456")

	assert.Equal(t, "existing-request-id-456", captured)
	assert.Equal(t, "existing-request-id-456", rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_GeneratesID(t *testing.T) {
	captured, rec := serve(t, "")

	require.NotEmpty(t, captured)
	_, err := uuid.Parse(captured)
	require.NoError(t, err)
	assert.Equal(t, captured, rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_ReplacesInvalidID(t *testing.T) {
	captured, rec := serve(t, "bad id\twith tabs")

	_, err := uuid.Parse(captured)
	require.NoError(t, err)
	assert.Equal(t, captured, rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_UniquePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, _ := serve(t, "")
		assert.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}
