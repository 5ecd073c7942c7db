package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/resilience"
)

const page = `<!DOCTYPE html><html><head><title>Host</title></head><body><object id="plugin"></object></body></html>`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMax = 2
	cfg.RetryWait = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func title(t *testing.T, p *Page) string {
	t.Helper()
	return goquery.NewDocumentFromNode(p.Root).Find("title").Text()
}

func TestLoadHTTP(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	l := New(testConfig(), nil)
	p, err := l.Load(context.Background(), srv.URL+"/index.html")
	require.NoError(t, err)

	assert.Equal(t, "Host", title(t, p))
	assert.Equal(t, "utf-8", p.Charset)
	assert.Equal(t, srv.URL+"/index.html", p.Location.String())
	assert.True(t, strings.HasPrefix(p.MIME, "text/html"))
	assert.Equal(t, len(page), p.Size)
	assert.Equal(t, "moonbridge/1.0", agent.Load())
}

func TestLoadDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><head><title>caf\xe9</title></head><body></body></html>"))
	}))
	defer srv.Close()

	p, err := New(testConfig(), nil).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "café", title(t, p))
	assert.Equal(t, "iso-8859-1", p.Charset)
}

func TestLoadRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	p, err := New(testConfig(), nil).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Host", title(t, p))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{"not": "html"}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(), nil).Load(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotHTML)
}

func TestLoadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := New(testConfig(), nil)
	_, err := l.Load(context.Background(), srv.URL+"/missing")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, resilience.StateClosed, l.Breaker().State(), "client errors do not trip the breaker")
}

func TestLoadBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RetryMax = 0
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	l := New(cfg, nil)

	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, l.Breaker().State())

	_, err := l.Load(context.Background(), srv.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(testConfig(), nil)
	_, err := l.Load(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, l.Breaker().Counts().Requests)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o600))

	l := New(testConfig(), nil)

	p, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Host", title(t, p))
	assert.Equal(t, "file", p.Location.Scheme)

	p, err = l.Load(context.Background(), "file://"+filepath.ToSlash(path))
	require.NoError(t, err)
	assert.Equal(t, "Host", title(t, p))

	_, err = l.Load(context.Background(), filepath.Join(dir, "missing.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadErrors(t *testing.T) {
	l := New(testConfig(), nil)

	_, err := l.Load(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = l.Load(context.Background(), "ftp://example.com/page.html")
	assert.ErrorIs(t, err, ErrUnsupported)

	cfg := testConfig()
	cfg.MaxBytes = 16
	path := filepath.Join(t.TempDir(), "big.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o600))
	_, err = New(cfg, nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrTooLarge)
}
