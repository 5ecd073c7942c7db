package browser

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/moonbridge/internal/handles"
	"github.com/GriffinCanCode/moonbridge/internal/native"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title> Moon Test </title></head>
<body>
  <div id="main" class="panel wide"><p>hello <b>world</b></p></div>
  <object id="silverlightControl" type="application/x-silverlight-2"></object>
  <iframe id="_sl_historyFrame" style="visibility:hidden"></iframe>
</body>
</html>`

// Calculator is a public scriptable type.
type Calculator struct {
	Precision int    `script:"precision"`
	Label     string `script:"label"`
}

func (c *Calculator) Add(a, b int) int { return a + b }

func (c *Calculator) Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

// Point is createable.
type Point struct {
	X int `json:"x" script:"x"`
	Y int `json:"y" script:"y"`
}

// Plain has neither methods nor script fields.
type Plain struct {
	Value int
}

// Opener calls back into its page from script.
type Opener struct {
	page *Page
	uri  *url.URL
}

func (o *Opener) Open() (string, error) {
	w, err := o.page.PopupWindow(o.uri, "help", nil)
	if err != nil || w == nil {
		return "", err
	}
	return w.Href()
}

func (o *Opener) Publish(key string) error {
	return o.page.RegisterScriptableObject(key, &Calculator{})
}

func (o *Opener) Bookmark(state string) (string, error) {
	if err := o.page.SetNavigationState(state); err != nil {
		return "", err
	}
	return o.page.NavigationState()
}

func (o *Opener) Alert(msg string) error {
	w, err := o.page.Window()
	if err != nil {
		return err
	}
	_, err = w.Invoke("alert", msg)
	return err
}

func (o *Opener) Shutdown() error {
	return o.page.Close()
}

type hidden struct{}

func (hidden) Do() {}

type fixture struct {
	engine  *native.Runtime
	surface native.SurfaceHandle
	plugin  native.PluginHandle
	pins    *handles.Table
	page    *Page
}

func newFixture(t *testing.T, settings Settings, allowPopups bool, markup string) *fixture {
	t.Helper()

	engine := native.NewRuntime(native.RuntimeConfig{}, nil)
	s, err := engine.CreateSurface(context.Background())
	require.NoError(t, err)
	plugin := engine.CreatePlugin(native.PluginOptions{AllowHTMLPopupWindow: allowPopups})

	var root *html.Node
	if markup != "" {
		root, err = html.Parse(strings.NewReader(markup))
		require.NoError(t, err)
	}
	loc, err := url.Parse("http://example.com/app/index.html")
	require.NoError(t, err)

	pins := handles.NewTable()
	page, err := New(Options{
		Engine:    engine,
		Plugin:    plugin,
		Surface:   s,
		Document:  root,
		Location:  loc,
		Settings:  settings,
		Navigator: Navigator{AppName: "Netscape", AppVersion: "5.0 (X11)", Platform: "Linux x86_64", UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:118.0) Gecko/20100101 Firefox/118.0", CookieEnabled: true},
		Handles:   pins,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	return &fixture{engine: engine, surface: s, plugin: plugin, pins: pins, page: page}
}

var htmlOn = Settings{EnableHTMLAccess: true}

func TestIsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     bool
	}{
		{"enabled", Settings{EnableHTMLAccess: true}, true},
		{"access off", Settings{EnableHTMLAccess: false}, false},
		{"out of browser", Settings{EnableHTMLAccess: true, RunningOutOfBrowser: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.settings, true, testPage)
			assert.Equal(t, tt.want, f.page.IsEnabled())
		})
	}
}

func TestAccessorsRequireHTMLAccess(t *testing.T) {
	f := newFixture(t, Settings{}, true, testPage)

	_, err := f.page.Document()
	assert.ErrorIs(t, err, ErrHTMLAccessDisabled)
	_, err = f.page.Window()
	assert.ErrorIs(t, err, ErrHTMLAccessDisabled)
	_, err = f.page.Plugin()
	assert.ErrorIs(t, err, ErrHTMLAccessDisabled)
	_, err = f.page.BrowserInformation()
	assert.ErrorIs(t, err, ErrHTMLAccessDisabled)
	assert.ErrorIs(t, f.page.SetNavigationState("x"), ErrHTMLAccessDisabled)

	state, err := f.page.NavigationState()
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestAccessorsAreCached(t *testing.T) {
	f := newFixture(t, htmlOn, true, testPage)

	w1, err := f.page.Window()
	require.NoError(t, err)
	w2, err := f.page.Window()
	require.NoError(t, err)
	assert.Same(t, w1, w2)

	p1, err := f.page.Plugin()
	require.NoError(t, err)
	p2, err := f.page.Plugin()
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, "silverlightControl", p1.ID())

	b1, err := f.page.BrowserInformation()
	require.NoError(t, err)
	b2, err := f.page.BrowserInformation()
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, "Firefox", b1.ProductName)
	assert.Equal(t, "118.0", b1.ProductVersion)
	assert.Equal(t, "5.0", b1.BrowserVersion)
	assert.True(t, b1.CookiesEnabled)
}

func TestServicesRegisteredAtStartup(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")

	h, ok := f.engine.ScriptableObject(f.plugin, "services")
	require.True(t, ok)
	v, ok := f.pins.Value(handles.Handle(h))
	require.True(t, ok)
	assert.IsType(t, &ScriptObject{}, v)
	assert.Contains(t, f.page.ScriptableObjects(), "services")
}

func TestRegisterScriptableObject(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		instance any
		wantErr  error
	}{
		{"valid", "calc", &Calculator{}, nil},
		{"empty key", "", &Calculator{}, ErrEmptyName},
		{"nul in key", "ca\x00lc", &Calculator{}, ErrNameHasNull},
		{"nil instance", "calc", nil, ErrNilInstance},
		{"typed nil", "calc", (*Calculator)(nil), ErrNilInstance},
		{"private type", "calc", hidden{}, ErrNotPublic},
		{"unnamed type", "calc", map[string]int{}, ErrNotPublic},
		{"nothing scriptable", "calc", &Plain{}, ErrNotScriptable},
		{"script object", "calc", NewScriptObject(&Plain{}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Settings{}, true, "")
			err := f.page.RegisterScriptableObject(tt.key, tt.instance)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			h, ok := f.engine.ScriptableObject(f.plugin, tt.key)
			require.True(t, ok)
			assert.NotZero(t, h)
		})
	}
}

func TestRegisterScriptableObjectEngineFailure(t *testing.T) {
	engine := new(mockEngine)
	engine.On("RegisterScriptableObject", native.PluginHandle(7), "services", mock.Anything).Return(nil)
	engine.On("RegisterScriptableObject", native.PluginHandle(7), "calc", mock.Anything).Return(native.ErrInvalidPlugin)

	page, err := New(Options{Engine: engine, Plugin: 7})
	require.NoError(t, err)
	defer page.Close()

	err = page.RegisterScriptableObject("calc", &Calculator{})
	assert.ErrorIs(t, err, native.ErrInvalidPlugin)
	assert.NotContains(t, page.ScriptableObjects(), "calc")
	engine.AssertExpectations(t)
}

func TestNewFailsWhenServicesRejected(t *testing.T) {
	engine := new(mockEngine)
	engine.On("RegisterScriptableObject", native.PluginHandle(0), "services", mock.Anything).Return(native.ErrInvalidPlugin)

	_, err := New(Options{Engine: engine})
	assert.ErrorIs(t, err, native.ErrInvalidPlugin)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestScriptCallsRegisteredObject(t *testing.T) {
	f := newFixture(t, htmlOn, true, testPage)
	calc := &Calculator{Precision: 2}
	require.NoError(t, f.page.RegisterScriptableObject("calc", calc))

	w, err := f.page.Window()
	require.NoError(t, err)

	v, err := w.Eval(context.Background(), "content.calc.add(2, 3)")
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	v, err = w.Eval(context.Background(), "content.calc.precision")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	_, err = w.Eval(context.Background(), "content.calc.label = 'sum'")
	require.NoError(t, err)
	assert.Equal(t, "sum", calc.Label)

	_, err = w.Eval(context.Background(), "content.calc.div(1, 0)")
	assert.ErrorContains(t, err, "division by zero")
}

func evalWithin(t *testing.T, w *HtmlWindow, script string) (any, error) {
	t.Helper()
	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := w.Eval(context.Background(), script)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-time.After(5 * time.Second):
		t.Fatalf("%q did not return", script)
		return nil, nil
	}
}

func TestScriptCallbacksReenterPage(t *testing.T) {
	f := newFixture(t, htmlOn, true, testPage)
	uri, _ := url.Parse("https://example.com/popup")
	require.NoError(t, f.page.RegisterScriptableObject("opener", &Opener{page: f.page, uri: uri}))
	w, err := f.page.Window()
	require.NoError(t, err)

	require.NoError(t, f.engine.BeginUserInitiatedEvent(f.surface))
	v, err := evalWithin(t, w, "content.opener.open()")
	require.NoError(t, err)
	assert.Equal(t, uri.String(), v)
	popups := f.page.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "help", popups[0].Target)

	_, err = evalWithin(t, w, "content.opener.publish('late')")
	require.NoError(t, err)
	assert.Contains(t, f.page.ScriptableObjects(), "late")
	v, err = evalWithin(t, w, "content.late.add(1, 2)")
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)

	v, err = evalWithin(t, w, "content.opener.bookmark('intro')")
	require.NoError(t, err)
	assert.Equal(t, "intro", v)

	_, err = evalWithin(t, w, "content.opener.alert('hi')")
	require.NoError(t, err)

	v, err = evalWithin(t, w, "content.opener.publish('x'); location.hash")
	require.NoError(t, err)
	assert.Equal(t, "#intro", v)
}

func TestScriptClosesPage(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")
	require.NoError(t, f.page.RegisterScriptableObject("opener", &Opener{page: f.page}))
	w, err := f.page.Window()
	require.NoError(t, err)

	v, err := evalWithin(t, w, "content.opener.shutdown(); 7")
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)
	assert.Zero(t, f.pins.Len())

	_, err = w.Eval(context.Background(), "1")
	assert.ErrorIs(t, err, ErrPageClosed)
}

func TestCreateableTypes(t *testing.T) {
	f := newFixture(t, Settings{}, true, "")
	point := reflect.TypeOf(Point{})

	assert.ErrorIs(t, f.page.RegisterCreateableType("", point), ErrEmptyName)
	assert.ErrorIs(t, f.page.RegisterCreateableType("p\x00", point), ErrNameHasNull)
	assert.ErrorIs(t, f.page.RegisterCreateableType("point", nil), ErrNilType)
	assert.ErrorIs(t, f.page.RegisterCreateableType("point", reflect.TypeOf(0)), ErrNotCreateable)
	assert.ErrorIs(t, f.page.RegisterCreateableType("point", reflect.TypeOf(hidden{})), ErrNotCreateable)

	require.NoError(t, f.page.RegisterCreateableType("point", point))
	assert.ErrorIs(t, f.page.RegisterCreateableType("point", reflect.TypeOf(&Point{})), ErrAliasRegistered)
	require.NoError(t, f.page.RegisterCreateableType("pointer", reflect.TypeOf(&Point{})))

	types := f.page.CreateableTypes()
	assert.Len(t, types, 2)
	delete(types, "point")
	assert.Len(t, f.page.CreateableTypes(), 2, "snapshot must be a copy")

	so, err := f.page.CreateInstance("pointer")
	require.NoError(t, err)
	assert.IsType(t, &Point{}, so.ManagedObject())
	assert.NotZero(t, so.Handle())

	assert.ErrorIs(t, f.page.UnregisterCreateableType(""), ErrEmptyName)
	assert.ErrorIs(t, f.page.UnregisterCreateableType("nope"), ErrAliasNotRegistered)
	require.NoError(t, f.page.UnregisterCreateableType("point"))
	assert.ErrorIs(t, f.page.UnregisterCreateableType("point"), ErrAliasNotRegistered)

	_, err = f.page.CreateInstance("point")
	assert.ErrorIs(t, err, ErrAliasNotRegistered)
}

func TestScriptCreatesObjectThroughServices(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")
	require.NoError(t, f.page.RegisterCreateableType("point", reflect.TypeOf(Point{})))

	w, err := f.page.Window()
	require.NoError(t, err)

	v, err := w.Eval(context.Background(), `
		var p = content.services.createObject("point");
		p.x = 3; p.y = 4;
		p.x * p.y`)
	require.NoError(t, err)
	assert.EqualValues(t, 12, v)

	v, err = w.Eval(context.Background(), "content.services.createableTypes().length")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestPopupWindowArguments(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")
	ftp, _ := url.Parse("ftp://example.com/file")

	_, err := f.page.PopupWindow(nil, "", nil)
	assert.ErrorIs(t, err, ErrNilURI)
	_, err = f.page.PopupWindow(ftp, "", nil)
	assert.ErrorIs(t, err, ErrInvalidScheme)
}

func TestPopupWindowRequiresUserInitiatedEvent(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")
	uri, _ := url.Parse("https://example.com/popup")

	assert.False(t, f.page.IsPopupWindowAllowed())
	w, err := f.page.PopupWindow(uri, "", nil)
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Empty(t, f.page.Popups())

	require.NoError(t, f.engine.BeginUserInitiatedEvent(f.surface))
	assert.True(t, f.page.IsPopupWindowAllowed())
	assert.True(t, f.page.IsPopupWindowAllowed(), "asking does not consume the event")

	w, err = f.page.PopupWindow(uri, "help", DefaultPopupWindowOptions())
	require.NoError(t, err)
	require.NotNil(t, w)
	href, err := w.Href()
	require.NoError(t, err)
	assert.Equal(t, uri.String(), href)

	assert.False(t, f.page.IsPopupWindowAllowed(), "one popup per event")
	w, err = f.page.PopupWindow(uri, "", nil)
	require.NoError(t, err)
	assert.Nil(t, w)

	require.NoError(t, f.engine.EndUserInitiatedEvent(f.surface))
	require.NoError(t, f.engine.BeginUserInitiatedEvent(f.surface))
	assert.True(t, f.page.IsPopupWindowAllowed())

	popups := f.page.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "help", popups[0].Target)
	assert.Contains(t, popups[0].Features, "width=640")
}

func TestPopupWindowBlockedByPlugin(t *testing.T) {
	f := newFixture(t, htmlOn, false, "")
	uri, _ := url.Parse("http://example.com/")

	require.NoError(t, f.engine.BeginUserInitiatedEvent(f.surface))
	assert.False(t, f.page.IsPopupWindowAllowed())
	w, err := f.page.PopupWindow(uri, "", nil)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestPopupWindowWithoutHTMLAccess(t *testing.T) {
	f := newFixture(t, Settings{}, true, "")
	uri, _ := url.Parse("http://example.com/")

	require.NoError(t, f.engine.BeginUserInitiatedEvent(f.surface))
	w, err := f.page.PopupWindow(uri, "", nil)
	require.NoError(t, err)
	assert.Nil(t, w, "window is hidden without HTML access")

	popups := f.page.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "_blank", popups[0].Target)
	assert.False(t, f.page.IsPopupWindowAllowed())
}

func TestHistoryIframe(t *testing.T) {
	f := newFixture(t, htmlOn, true, testPage)
	assert.NoError(t, f.page.EnsureHistoryIframePresence())

	missing := newFixture(t, htmlOn, true, `<html><body><div id="_sl_historyFrame"></div></body></html>`)
	assert.ErrorIs(t, missing.page.EnsureHistoryIframePresence(), ErrMissingHistoryFrame)

	_, err := missing.page.NavigationState()
	assert.ErrorIs(t, err, ErrMissingHistoryFrame)
	assert.ErrorIs(t, missing.page.SetNavigationState("a"), ErrMissingHistoryFrame)
}

func TestNavigationState(t *testing.T) {
	f := newFixture(t, htmlOn, true, testPage)

	state, err := f.page.NavigationState()
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, f.page.SetNavigationState("page2"))
	state, err = f.page.NavigationState()
	require.NoError(t, err)
	assert.Equal(t, "page2", state)

	w, err := f.page.Window()
	require.NoError(t, err)
	v, err := w.Eval(context.Background(), "location.hash")
	require.NoError(t, err)
	assert.Equal(t, "#page2", v)

	href, err := w.Href()
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/app/index.html#page2", href)

	_, err = w.Eval(context.Background(), "location.hash = '#page3'")
	require.NoError(t, err)
	state, err = f.page.NavigationState()
	require.NoError(t, err)
	assert.Equal(t, "page3", state)
}

func TestCloseReleasesHandles(t *testing.T) {
	f := newFixture(t, htmlOn, true, "")
	require.NoError(t, f.page.RegisterScriptableObject("calc", &Calculator{}))
	require.NoError(t, f.page.RegisterCreateableType("point", reflect.TypeOf(Point{})))
	_, err := f.page.CreateInstance("point")
	require.NoError(t, err)
	assert.Equal(t, 3, f.pins.Len())

	require.NoError(t, f.page.Close())
	assert.Zero(t, f.pins.Len())
	require.NoError(t, f.page.Close())

	assert.ErrorIs(t, f.page.RegisterScriptableObject("late", &Calculator{}), ErrPageClosed)
	_, err = f.page.CreateInstance("point")
	assert.ErrorIs(t, err, ErrPageClosed)

	w, err := f.page.Window()
	require.NoError(t, err)
	_, err = w.Eval(context.Background(), "1")
	assert.ErrorIs(t, err, ErrPageClosed)
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) CreateSurface(ctx context.Context) (native.SurfaceHandle, error) {
	args := m.Called(ctx)
	return args.Get(0).(native.SurfaceHandle), args.Error(1)
}

func (m *mockEngine) DestroySurface(s native.SurfaceHandle) error {
	return m.Called(s).Error(0)
}

func (m *mockEngine) RegisterManagedType(s native.SurfaceHandle, name string, gcHandle uintptr, parent native.TypeHandle) (native.TypeHandle, error) {
	args := m.Called(s, name, gcHandle, parent)
	return args.Get(0).(native.TypeHandle), args.Error(1)
}

func (m *mockEngine) RegisterScriptableObject(p native.PluginHandle, key string, obj uintptr) error {
	return m.Called(p, key, obj).Error(0)
}

func (m *mockEngine) IsUserInitiatedEvent(s native.SurfaceHandle) bool {
	return m.Called(s).Bool(0)
}

func (m *mockEngine) UserInitiatedCounter(s native.SurfaceHandle) int {
	return m.Called(s).Int(0)
}

func (m *mockEngine) AllowHTMLPopupWindow(p native.PluginHandle) bool {
	return m.Called(p).Bool(0)
}
