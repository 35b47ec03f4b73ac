package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substratehq/corpus/pkg/fetch"
)

func TestExtractHTML(t *testing.T) {
	html := `<html><head><title>Cats</title><style>.x{}</style></head>
	<body><script>var x=1;</script><p>The cat sat.</p><p>The dog ran.</p></body></html>`

	title, text, err := fetch.ExtractHTML(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Cats", title)
	assert.Contains(t, text, "The cat sat.")
	assert.Contains(t, text, "The dog ran.")
	assert.NotContains(t, text, "var x=1")
	assert.NotContains(t, text, ".x{}")
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Doc</title></head><body>hello world</body></html>`))
	}))
	defer srv.Close()

	f := fetch.NewWithConfig(fetch.FetcherConfig{RateLimit: 100})
	title, text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Doc", title)
	assert.Contains(t, text, "hello world")
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw text body"))
	}))
	defer srv.Close()

	f := fetch.NewWithConfig(fetch.FetcherConfig{RateLimit: 100})
	_, text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "raw text body", text)
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := fetch.NewWithConfig(fetch.FetcherConfig{RateLimit: 100})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
