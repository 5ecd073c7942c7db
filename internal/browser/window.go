package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

// HtmlWindow is a browsing context: the page's own window or one opened
// with PopupWindow.
type HtmlWindow struct {
	env *scriptEnv
	obj *goja.Object
}

// Eval runs script in the page's global scope.
func (w *HtmlWindow) Eval(ctx context.Context, script string) (any, error) {
	return w.env.Run(ctx, script)
}

// Invoke calls a function-valued property of the window.
func (w *HtmlWindow) Invoke(name string, args ...any) (any, error) {
	defer w.env.lock()()
	if w.env.vm == nil {
		return nil, ErrPageClosed
	}
	v, err := w.env.call(w.obj, name, args...)
	if err != nil {
		return nil, scriptError(err)
	}
	return export(v), nil
}

// GetProperty reads a window property.
func (w *HtmlWindow) GetProperty(name string) (any, error) {
	defer w.env.lock()()
	if w.env.vm == nil {
		return nil, ErrPageClosed
	}
	return export(w.obj.Get(name)), nil
}

// SetProperty writes a window property.
func (w *HtmlWindow) SetProperty(name string, value any) error {
	defer w.env.lock()()
	if w.env.vm == nil {
		return ErrPageClosed
	}
	return w.obj.Set(name, value)
}

// CurrentBookmark returns location.hash without the leading '#'.
func (w *HtmlWindow) CurrentBookmark() (string, error) {
	defer w.env.lock()()
	loc, err := w.location()
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(loc.Get("hash").String(), "#"), nil
}

// SetCurrentBookmark assigns location.hash.
func (w *HtmlWindow) SetCurrentBookmark(bookmark string) error {
	defer w.env.lock()()
	loc, err := w.location()
	if err != nil {
		return err
	}
	return loc.Set("hash", normalizeHash(bookmark))
}

// NavigateToBookmark is SetCurrentBookmark.
func (w *HtmlWindow) NavigateToBookmark(bookmark string) error {
	return w.SetCurrentBookmark(bookmark)
}

// Href returns location.href.
func (w *HtmlWindow) Href() (string, error) {
	defer w.env.lock()()
	loc, err := w.location()
	if err != nil {
		return "", err
	}
	return loc.Get("href").String(), nil
}

// Navigate opens uri in the named target through window.open.
func (w *HtmlWindow) Navigate(uri *url.URL, target string) (*HtmlWindow, error) {
	if uri == nil {
		return nil, ErrNilURI
	}
	defer w.env.lock()()
	if w.env.vm == nil {
		return nil, ErrPageClosed
	}
	v, err := w.env.call(w.env.window, "open", uri.String(), target)
	if err != nil {
		return nil, scriptError(err)
	}
	return w.env.windowValue(v), nil
}

// Callers hold env.mu.
func (w *HtmlWindow) location() (*goja.Object, error) {
	if w.env.vm == nil {
		return nil, ErrPageClosed
	}
	v := w.obj.Get("location")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("%w: location", ErrNoSuchMember)
	}
	return v.ToObject(w.env.vm), nil
}

// windowValue wraps a window object returned by script. Callers hold mu.
func (e *scriptEnv) windowValue(v goja.Value) *HtmlWindow {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return &HtmlWindow{env: e, obj: v.ToObject(e.vm)}
}
