package host

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/moonbridge/internal/browser"
	"github.com/GriffinCanCode/moonbridge/internal/browser/loader"
	"github.com/GriffinCanCode/moonbridge/internal/handles"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/moonbridge/internal/native"
	"github.com/GriffinCanCode/moonbridge/internal/surface"
)

// typesKey is the script key of the catalog object.
const typesKey = "types"

// ErrUnknownClass is returned by Resolve for names missing from the catalog.
var ErrUnknownClass = errors.New("host: unknown class")

// Options configures a Host.
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Host is one running plugin instance.
type Host struct {
	runtime *native.Runtime
	plugin  native.PluginHandle
	surface *surface.Surface
	page    *browser.Page
	catalog *Catalog
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates the engine surface, loads the hosting page when one is
// configured and starts the HTML bridge.
func New(ctx context.Context, opts Options) (*Host, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := NewCatalog(cfg.Host.Classes)
	if err != nil {
		return nil, err
	}

	var (
		root     *html.Node
		location *url.URL
	)
	if cfg.Host.PageSource != "" {
		ld := loader.New(loaderConfig(cfg), logger)
		pg, err := ld.Load(ctx, cfg.Host.PageSource)
		if err != nil {
			return nil, fmt.Errorf("load page: %w", err)
		}
		root, location = pg.Root, pg.Location
		logger.Info("Loaded hosting page",
			zap.String("source", cfg.Host.PageSource),
			zap.String("mime", pg.MIME),
			zap.String("charset", pg.Charset),
			zap.Int("bytes", pg.Size),
		)
	}

	rt := native.NewRuntime(native.RuntimeConfig{MaxTypes: cfg.Engine.MaxTypes}, logger)
	plugin := rt.CreatePlugin(native.PluginOptions{AllowHTMLPopupWindow: cfg.Host.AllowHTMLPopupWindow})
	pins := handles.NewTable()

	surf, err := surface.New(ctx, surface.Options{
		Engine:  rt,
		Logger:  logger,
		Metrics: opts.Metrics,
		Handles: pins,
	})
	if err != nil {
		_ = rt.DestroyPlugin(plugin)
		return nil, err
	}

	page, err := browser.New(browser.Options{
		Engine:   rt,
		Plugin:   plugin,
		Surface:  surf.Native(),
		Document: root,
		Location: location,
		Settings: browser.Settings{
			EnableHTMLAccess:    cfg.Host.EnableHTMLAccess,
			RunningOutOfBrowser: cfg.Host.RunningOutOfBrowser,
		},
		Navigator: browser.Navigator{
			AppName:       "Netscape",
			Platform:      "Linux x86_64",
			UserAgent:     cfg.Host.UserAgent,
			CookieEnabled: true,
		},
		Logger:  logger.Named("browser"),
		Metrics: opts.Metrics,
		Handles: pins,
	})
	if err != nil {
		_ = surf.Close()
		_ = rt.DestroyPlugin(plugin)
		return nil, err
	}

	h := &Host{
		runtime: rt,
		plugin:  plugin,
		surface: surf,
		page:    page,
		catalog: catalog,
		logger:  logger.Named("host"),
	}
	if err := page.RegisterScriptableObject(typesKey, &TypeService{host: h}); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("register %s: %w", typesKey, err)
	}

	h.logger.Info("Host started",
		zap.String("surface_id", surf.ID().String()),
		zap.Int("classes", catalog.Len()),
		zap.Bool("html_access", page.IsEnabled()),
	)
	return h, nil
}

func loaderConfig(cfg *config.Config) loader.Config {
	lc := loader.DefaultConfig()
	if cfg.Loader.Timeout.Duration > 0 {
		lc.Timeout = cfg.Loader.Timeout.Duration
	}
	if cfg.Loader.RetryMax >= 0 {
		lc.RetryMax = cfg.Loader.RetryMax
	}
	if cfg.Loader.MaxBytes > 0 {
		lc.MaxBytes = cfg.Loader.MaxBytes
	}
	if cfg.Loader.BreakerFailures > 0 {
		lc.BreakerFailures = cfg.Loader.BreakerFailures
	}
	if cfg.Loader.BreakerTimeout.Duration > 0 {
		lc.BreakerTimeout = cfg.Loader.BreakerTimeout.Duration
	}
	if cfg.Host.UserAgent != "" {
		lc.UserAgent = cfg.Host.UserAgent
	}
	return lc
}

// Surface returns the host's surface.
func (h *Host) Surface() *surface.Surface { return h.surface }

// Page returns the HTML bridge.
func (h *Host) Page() *browser.Page { return h.page }

// Runtime returns the in-process engine.
func (h *Host) Runtime() *native.Runtime { return h.runtime }

// Plugin returns the plugin instance handle.
func (h *Host) Plugin() native.PluginHandle { return h.plugin }

// Classes returns the catalog's class names.
func (h *Host) Classes() []string { return h.catalog.Names() }

// Resolve resolves the catalog class named name on the surface.
func (h *Host) Resolve(name string) (*surface.TypeDescriptor, error) {
	cls, ok := h.catalog.Class(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
	}
	return h.surface.Resolve(cls)
}

// Close stops the bridge, tears down the surface and drops the plugin.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if err := h.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		if err := h.surface.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close surface: %w", err))
		}
		if err := h.runtime.DestroyPlugin(h.plugin); err != nil {
			errs = append(errs, fmt.Errorf("destroy plugin: %w", err))
		}
		h.closeErr = errors.Join(errs...)
		h.logger.Info("Host stopped", zap.Error(h.closeErr))
	})
	return h.closeErr
}

// TypeService exposes the class catalog to page script.
type TypeService struct {
	host *Host
}

// Resolve registers the named class and returns its engine handle.
func (s *TypeService) Resolve(name string) (native.TypeHandle, error) {
	td, err := s.host.Resolve(name)
	if err != nil {
		return 0, err
	}
	return td.NativeHandle, nil
}

// Names lists the resolvable class names.
func (s *TypeService) Names() []string {
	return s.host.Classes()
}

// Registered reports whether the named class is already on the surface.
func (s *TypeService) Registered(name string) bool {
	_, ok := s.host.surface.LookupName(name)
	return ok
}
