package browser

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/moonbridge/internal/handles"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/moonbridge/internal/native"
)

// historyFrameID is the iframe the navigation journal relies on.
const historyFrameID = "_sl_historyFrame"

// servicesKey is the script key of the host services object.
const servicesKey = "services"

// Options configures a Page.
type Options struct {
	Engine  native.Engine
	Plugin  native.PluginHandle
	Surface native.SurfaceHandle

	// Document is the parsed hosting page; nil means an empty page.
	Document *html.Node
	Location *url.URL

	// PluginElementID names the <object> element hosting the plugin. When
	// empty the first <object> or <embed> in the page is used.
	PluginElementID string

	Settings      Settings
	Navigator     Navigator
	ScriptTimeout time.Duration

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Handles *handles.Table
}

// Page is the HTML bridge of one plugin instance.
type Page struct {
	engine   native.Engine
	plugin   native.PluginHandle
	surface  native.SurfaceHandle
	settings Settings
	nav      Navigator
	pluginID string

	logger  *zap.Logger
	metrics *monitoring.Metrics
	pins    *handles.Table
	env     *scriptEnv
	doc     *HtmlDocument

	mu            sync.Mutex
	window        *HtmlWindow
	pluginElement *HtmlElement
	browserInfo   *BrowserInformation
	createable    map[string]reflect.Type
	scriptable    map[string]*ScriptObject
	pinned        []handles.Handle
	lastUserEvent int
	closed        bool
}

// New builds the bridge and registers the host services object with the
// engine.
func New(opts Options) (*Page, error) {
	if opts.Engine == nil {
		return nil, errors.New("browser: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Handles == nil {
		opts.Handles = handles.NewTable()
	}
	if opts.ScriptTimeout == 0 {
		opts.ScriptTimeout = 5 * time.Second
	}

	uri := ""
	if opts.Location != nil {
		uri = opts.Location.String()
	}
	doc := NewDocument(opts.Document, uri)

	env, err := newScriptEnv(doc, opts.Navigator, opts.Location, opts.ScriptTimeout, opts.Logger.Named("script"))
	if err != nil {
		return nil, fmt.Errorf("script environment: %w", err)
	}

	p := &Page{
		engine:     opts.Engine,
		plugin:     opts.Plugin,
		surface:    opts.Surface,
		settings:   opts.Settings,
		nav:        opts.Navigator,
		pluginID:   opts.PluginElementID,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		pins:       opts.Handles,
		env:        env,
		doc:        doc,
		createable: make(map[string]reflect.Type),
		scriptable: make(map[string]*ScriptObject),
	}

	// services is a private type, so it skips the public checks.
	if err := p.register(servicesKey, NewScriptObject(&hostServices{page: p})); err != nil {
		env.Close()
		return nil, fmt.Errorf("register %s: %w", servicesKey, err)
	}
	return p, nil
}

// IsEnabled reports whether the HTML bridge is usable.
func (p *Page) IsEnabled() bool {
	return !p.settings.RunningOutOfBrowser && p.settings.EnableHTMLAccess
}

func (p *Page) checkHTMLAccess() error {
	if !p.IsEnabled() {
		return ErrHTMLAccessDisabled
	}
	return nil
}

// Document returns the hosting page's document.
func (p *Page) Document() (*HtmlDocument, error) {
	if err := p.checkHTMLAccess(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// Window returns the hosting page's window.
func (p *Page) Window() (*HtmlWindow, error) {
	if err := p.checkHTMLAccess(); err != nil {
		return nil, err
	}
	return p.unsafeWindow(), nil
}

// unsafeWindow skips the access check; popups work without HTML access.
func (p *Page) unsafeWindow() *HtmlWindow {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		p.window = &HtmlWindow{env: p.env, obj: p.env.window}
	}
	return p.window
}

// Plugin returns the element hosting the plugin.
func (p *Page) Plugin() (*HtmlElement, error) {
	if err := p.checkHTMLAccess(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pluginElement == nil {
		var el *HtmlElement
		if p.pluginID != "" {
			el = p.doc.GetElementByID(p.pluginID)
		}
		if el == nil {
			el = p.doc.QuerySelector("object, embed")
		}
		if el == nil {
			el = p.doc.CreateElement("object")
		}
		p.pluginElement = el
	}
	return p.pluginElement, nil
}

// BrowserInformation describes the hosting browser.
func (p *Page) BrowserInformation() (*BrowserInformation, error) {
	if err := p.checkHTMLAccess(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserInfo == nil {
		p.browserInfo = newBrowserInformation(p.nav)
	}
	return p.browserInfo, nil
}

// RegisterScriptableObject makes instance reachable from script as
// content[key]. HTML access is not required.
func (p *Page) RegisterScriptableObject(key string, instance any) error {
	if err := checkName(key); err != nil {
		return err
	}
	if instance == nil || isNilValue(instance) {
		return ErrNilInstance
	}
	so, isScriptObject := instance.(*ScriptObject)
	if !isScriptObject {
		t := reflect.TypeOf(instance)
		if !isPublic(t) {
			return fmt.Errorf("%w: %s", ErrNotPublic, t)
		}
		if !isScriptable(t) {
			return fmt.Errorf("%w: %s", ErrNotScriptable, t)
		}
		so = NewScriptObject(instance)
	}
	if err := p.register(key, so); err != nil {
		return err
	}
	p.metrics.IncScriptableObjects()
	return nil
}

func (p *Page) register(key string, so *ScriptObject) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	if so.handle == 0 {
		so.handle = p.pins.Pin(so)
		p.pinned = append(p.pinned, so.handle)
	}
	p.mu.Unlock()

	if err := p.engine.RegisterScriptableObject(p.plugin, key, so.handle.Ptr()); err != nil {
		return fmt.Errorf("engine rejected %s: %w", key, err)
	}
	if err := p.env.expose(key, so); err != nil {
		return err
	}

	p.mu.Lock()
	p.scriptable[key] = so
	p.mu.Unlock()
	p.logger.Debug("scriptable object registered",
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", so.value)),
		zap.Uintptr("handle", so.handle.Ptr()),
	)
	return nil
}

// ScriptableObjects returns the registered keys, sorted.
func (p *Page) ScriptableObjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.scriptable))
	for k := range p.scriptable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScriptableObject returns the object registered under key.
func (p *Page) ScriptableObject(key string) (*ScriptObject, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	so, ok := p.scriptable[key]
	return so, ok
}

// RegisterCreateableType lets script instantiate t under alias.
func (p *Page) RegisterCreateableType(alias string, t reflect.Type) error {
	if err := checkName(alias); err != nil {
		return err
	}
	if t == nil {
		return ErrNilType
	}
	if !isCreateable(t) {
		return fmt.Errorf("%w: %s", ErrNotCreateable, t)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.createable[alias]; ok {
		return fmt.Errorf("%w: %s", ErrAliasRegistered, alias)
	}
	p.createable[alias] = t
	p.metrics.SetCreateableTypes(len(p.createable))
	return nil
}

// UnregisterCreateableType removes alias.
func (p *Page) UnregisterCreateableType(alias string) error {
	if err := checkName(alias); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.createable[alias]; !ok {
		return fmt.Errorf("%w: %s", ErrAliasNotRegistered, alias)
	}
	delete(p.createable, alias)
	p.metrics.SetCreateableTypes(len(p.createable))
	return nil
}

// CreateableTypes returns a copy of the alias table.
func (p *Page) CreateableTypes() map[string]reflect.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]reflect.Type, len(p.createable))
	for k, v := range p.createable {
		out[k] = v
	}
	return out
}

// CreateInstance instantiates the type registered under alias and pins it.
func (p *Page) CreateInstance(alias string) (*ScriptObject, error) {
	if err := checkName(alias); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	t, ok := p.createable[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAliasNotRegistered, alias)
	}
	st, _ := structType(t)
	so := NewScriptObject(reflect.New(st).Interface())
	so.handle = p.pins.Pin(so)
	p.pinned = append(p.pinned, so.handle)
	return so, nil
}

// IsPopupWindowAllowed reports whether PopupWindow would open a window: the
// plugin allows popups, a user-initiated event is in progress and that
// event has not been used for a popup yet.
func (p *Page) IsPopupWindowAllowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.popupAllowedLocked()
}

func (p *Page) popupAllowedLocked() bool {
	if !p.engine.AllowHTMLPopupWindow(p.plugin) {
		return false
	}
	if !p.engine.IsUserInitiatedEvent(p.surface) {
		return false
	}
	return p.lastUserEvent != p.engine.UserInitiatedCounter(p.surface)
}

// PopupWindow opens uri in a new window. It returns nil, nil when popups
// are not allowed. The window is returned only when HTML access is enabled.
func (p *Page) PopupWindow(uri *url.URL, target string, opts *PopupWindowOptions) (*HtmlWindow, error) {
	if uri == nil {
		return nil, ErrNilURI
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheme, uri.Scheme)
	}

	p.mu.Lock()
	if !p.popupAllowedLocked() {
		p.mu.Unlock()
		p.metrics.RecordPopup("blocked")
		p.logger.Debug("popup blocked", zap.String("url", uri.String()))
		return nil, nil
	}
	// a user-initiated event opens at most one popup
	p.lastUserEvent = p.engine.UserInitiatedCounter(p.surface)
	p.mu.Unlock()

	enabled := p.IsEnabled()
	if !enabled && target == "" {
		target = "_blank"
	}
	args := []any{uri.String(), target}
	if opts != nil {
		args = append(args, opts.String())
	}

	unlock := p.env.lock()
	if p.env.vm == nil {
		unlock()
		return nil, ErrPageClosed
	}
	v, err := p.env.call(p.env.window, "open", args...)
	var popup *HtmlWindow
	if err == nil {
		popup = p.env.windowValue(v)
	}
	unlock()
	if err != nil {
		return nil, fmt.Errorf("window.open: %w", scriptError(err))
	}

	p.metrics.RecordPopup("opened")
	p.logger.Info("popup opened", zap.String("url", uri.String()), zap.String("target", target))
	if !enabled {
		return nil, nil
	}
	return popup, nil
}

// Popups returns the window.open calls made so far.
func (p *Page) Popups() []Popup {
	return p.env.Popups()
}

// EnsureHistoryIframePresence fails unless the page contains
// <iframe id="_sl_historyFrame">.
func (p *Page) EnsureHistoryIframePresence() error {
	doc, err := p.Document()
	if err != nil {
		return err
	}
	el := doc.GetElementByID(historyFrameID)
	if el == nil || !strings.EqualFold(el.TagName(), "iframe") {
		return ErrMissingHistoryFrame
	}
	return nil
}

// NavigationState returns the current bookmark. It is empty, not an error,
// when the bridge is disabled.
func (p *Page) NavigationState() (string, error) {
	if !p.IsEnabled() {
		return "", nil
	}
	if err := p.EnsureHistoryIframePresence(); err != nil {
		return "", err
	}
	return p.unsafeWindow().CurrentBookmark()
}

// SetNavigationState sets the current bookmark.
func (p *Page) SetNavigationState(state string) error {
	if err := p.checkHTMLAccess(); err != nil {
		return err
	}
	if err := p.EnsureHistoryIframePresence(); err != nil {
		return err
	}
	return p.unsafeWindow().SetCurrentBookmark(state)
}

// Close releases every handle the page pinned and drops the script
// environment.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pinned := p.pinned
	p.pinned = nil
	p.mu.Unlock()

	var errs []error
	for _, h := range pinned {
		if err := p.pins.Unpin(h); err != nil {
			errs = append(errs, err)
		}
	}
	p.env.Close()
	p.logger.Debug("page closed", zap.Int("released", len(pinned)-len(errs)))
	return errors.Join(errs...)
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// hostServices is registered as content.services.
type hostServices struct {
	page *Page
}

// CreateObject instantiates a createable type by alias.
func (s *hostServices) CreateObject(alias string) (*ScriptObject, error) {
	return s.page.CreateInstance(alias)
}

// CreateableTypes lists the registered aliases.
func (s *hostServices) CreateableTypes() []string {
	types := s.page.CreateableTypes()
	aliases := make([]string, 0, len(types))
	for alias := range types {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
