package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		paths []string
		want  string
	}{
		{"api endpoint", "http://localhost:8000", []string{"api", "session"}, "http://localhost:8000/api/session"},
		{"base with trailing slash", "http://localhost:8000/", []string{"oauth"}, "http://localhost:8000/oauth"},
		{"base with path", "https://example.com/anime", []string{"home"}, "https://example.com/anime/home"},
		{"trailing slash preserved", "https://example.com", []string{"api/"}, "https://example.com/api/"},
		{"root", "http://localhost:5173", nil, "http://localhost:5173/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := JoinPath("://bad", "x")
	assert.Error(t, err)
	assert.Panics(t, func() { MustJoinPath("://bad") })
}

func TestWithQuery(t *testing.T) {
	got, err := WithQuery("http://localhost:5173/", "error", "cancelled")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/?error=cancelled", got)

	got, err = WithQuery("http://localhost:5173/?a=1", "error", "a b")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/?a=1&error=a+b", got)
}

func TestOrigin(t *testing.T) {
	got, err := Origin("http://localhost:5173/home?x=1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", got)
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", CanonicalPath(""))
	assert.Equal(t, "/", CanonicalPath("/"))
	assert.Equal(t, "/", CanonicalPath("//"))
	assert.Equal(t, "/home", CanonicalPath("/home/"))
	assert.Equal(t, "/home", CanonicalPath("/home"))
	assert.Equal(t, "/a/b", CanonicalPath("/a/b//"))
}
