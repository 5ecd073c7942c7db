// Package loader fetches and parses the page that hosts a plugin.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/resilience"
)

var (
	ErrNoSource    = errors.New("loader: page source is empty")
	ErrNotHTML     = errors.New("loader: content is not HTML")
	ErrTooLarge    = errors.New("loader: page exceeds size limit")
	ErrUnsupported = errors.New("loader: unsupported scheme")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("loader: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Config configures a Loader.
type Config struct {
	Timeout         time.Duration
	RetryMax        int
	RetryWait       time.Duration
	MaxBytes        int64
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	UserAgent       string
}

// DefaultConfig returns the loader defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		RetryMax:        3,
		RetryWait:       250 * time.Millisecond,
		MaxBytes:        4 << 20,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		UserAgent:       "moonbridge/1.0",
	}
}

// Page is a loaded and parsed hosting page.
type Page struct {
	Root     *html.Node
	Location *url.URL
	MIME     string
	Charset  string
	Size     int
}

// Loader loads pages from disk or over HTTP.
type Loader struct {
	cfg     Config
	client  *retryablehttp.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// New creates a Loader.
func New(cfg Config, logger *zap.Logger) *Loader {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("loader")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWait
	client.RetryWaitMax = 10 * cfg.RetryWait
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = leveledLogger{logger.Sugar()}

	breaker := resilience.New("page-loader", resilience.Settings{
		Failures: cfg.BreakerFailures,
		Timeout:  cfg.BreakerTimeout,
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, ErrNotHTML) || errors.Is(err, ErrTooLarge)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Loader{cfg: cfg, client: client, breaker: breaker, logger: logger}
}

// Breaker exposes the breaker guarding remote loads.
func (l *Loader) Breaker() *resilience.Breaker { return l.breaker }

// Load reads src, which is an http(s) URL, a file URL or a file path.
func (l *Loader) Load(ctx context.Context, src string) (*Page, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrNoSource
	}

	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including Windows drive letters
		return l.loadFile(src)
	}

	switch u.Scheme {
	case "http", "https":
		return resilience.Do(ctx, l.breaker, func(ctx context.Context) (*Page, error) {
			return l.fetch(ctx, u)
		})
	case "file":
		return l.loadFile(u.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, u.Scheme)
	}
}

func (l *Loader) loadFile(path string) (*Page, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return nil, err
	}
	loc := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return l.parse(data, "", loc)
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loader: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.String(), Code: resp.StatusCode}
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	declared := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		declared = params["charset"]
	}

	loc := u
	if resp.Request != nil && resp.Request.URL != nil {
		loc = resp.Request.URL
	}
	page, err := l.parse(data, declared, loc)
	if err != nil {
		return nil, err
	}
	l.logger.Info("page fetched",
		zap.String("url", loc.String()),
		zap.Int("bytes", len(data)),
		zap.String("charset", page.Charset),
		zap.Duration("duration", time.Since(start)),
	)
	return page, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("loader: read: %w", err)
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.cfg.MaxBytes)
	}
	return data, nil
}

// parse sniffs the content type, decodes to UTF-8 and builds the tree.
func (l *Loader) parse(data []byte, declared string, loc *url.URL) (*Page, error) {
	mt := mimetype.Detect(data)
	if !mt.Is("text/html") && !mt.Is("application/xhtml+xml") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotHTML, mt.String())
	}

	label := declared
	if label == "" {
		label = detectCharset(data)
	}

	var r io.Reader = bytes.NewReader(data)
	if dec, err := charset.NewReaderLabel(label, r); err == nil {
		r = dec
	} else {
		l.logger.Debug("unknown charset, reading as utf-8", zap.String("charset", label))
		label = "utf-8"
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", loc, err)
	}
	return &Page{
		Root:     root,
		Location: loc,
		MIME:     mt.String(),
		Charset:  strings.ToLower(label),
		Size:     len(data),
	}, nil
}

// detectCharset trusts a byte order mark and otherwise asks chardet.
func detectCharset(data []byte) string {
	if _, name, certain := charset.DetermineEncoding(data, ""); certain {
		return name
	}
	res, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || res == nil || res.Charset == "" {
		return "utf-8"
	}
	return res.Charset
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
