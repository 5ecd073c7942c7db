package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Popup records one window.open call.
type Popup struct {
	URL      string    `json:"url"`
	Target   string    `json:"target"`
	Features string    `json:"features,omitempty"`
	Time     time.Time `json:"time"`
}

// scriptEnv is the page's script environment. goja runtimes are not safe for
// concurrent use, so every touch of vm happens under mu. Go code called back
// from running script runs on the goroutine that holds mu; lock lets it
// through without taking mu again.
type scriptEnv struct {
	mu      sync.Mutex
	owner   atomic.Int64
	vm      *goja.Runtime
	window  *goja.Object
	content *goja.Object
	doc     *HtmlDocument
	timeout time.Duration
	logger  *zap.Logger

	base   *url.URL
	hash   string
	popups []Popup
}

func newScriptEnv(doc *HtmlDocument, nav Navigator, location *url.URL, timeout time.Duration, logger *zap.Logger) (*scriptEnv, error) {
	if location == nil {
		location = &url.URL{Scheme: "about", Opaque: "blank"}
	}
	e := &scriptEnv{
		vm:      goja.New(),
		doc:     doc,
		timeout: timeout,
		logger:  logger,
		base:    location,
		hash:    normalizeHash(location.Fragment),
	}
	e.vm.SetMaxCallStackSize(1024)
	e.vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if err := e.setupGlobals(nav); err != nil {
		return nil, err
	}
	return e, nil
}

// lock takes mu unless the calling goroutine already holds it and returns
// the matching unlock.
func (e *scriptEnv) lock() func() {
	if e.held() {
		return func() {}
	}
	e.mu.Lock()
	e.owner.Store(goroutineID())
	return func() {
		e.owner.Store(0)
		e.mu.Unlock()
	}
}

// held reports whether the calling goroutine holds mu. owner only ever
// equals a goroutine's own id while that goroutine holds mu.
func (e *scriptEnv) held() bool {
	return e.owner.Load() == goroutineID()
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(field, 10, 64)
	return id
}

func (e *scriptEnv) setupGlobals(nav Navigator) error {
	vm := e.vm
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, e.consoleFunc(level)); err != nil {
			return err
		}
	}

	navigator := vm.NewObject()
	_ = navigator.Set("appName", nav.AppName)
	_ = navigator.Set("appVersion", nav.AppVersion)
	_ = navigator.Set("platform", nav.Platform)
	_ = navigator.Set("userAgent", nav.UserAgent)
	_ = navigator.Set("cookieEnabled", nav.CookieEnabled)

	location, err := e.newLocation()
	if err != nil {
		return err
	}

	e.window = vm.GlobalObject()
	e.content = vm.NewObject()
	globals := map[string]any{
		"window":    e.window,
		"self":      e.window,
		"console":   console,
		"navigator": navigator,
		"location":  location,
		"document":  e.newDocument(),
		"content":   e.content,
		"open":      e.open,
		"alert": func(call goja.FunctionCall) goja.Value {
			e.logger.Info("alert", zap.String("message", call.Argument(0).String()))
			return goja.Undefined()
		},
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

func (e *scriptEnv) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")
		switch level {
		case "warn":
			e.logger.Warn(msg)
		case "error":
			e.logger.Error(msg)
		case "debug":
			e.logger.Debug(msg)
		default:
			e.logger.Info(msg)
		}
		return goja.Undefined()
	}
}

// newLocation builds window.location with live hash and href accessors.
func (e *scriptEnv) newLocation() (*goja.Object, error) {
	vm := e.vm
	loc := vm.NewObject()
	getHash := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(e.hash) })
	setHash := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		e.hash = normalizeHash(call.Argument(0).String())
		return goja.Undefined()
	})
	if err := loc.DefineAccessorProperty("hash", getHash, setHash, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	getHref := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(e.href()) })
	if err := loc.DefineAccessorProperty("href", getHref, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	_ = loc.Set("protocol", e.base.Scheme+":")
	_ = loc.Set("host", e.base.Host)
	_ = loc.Set("pathname", e.base.Path)
	return loc, nil
}

func (e *scriptEnv) href() string {
	u := *e.base
	u.Fragment = strings.TrimPrefix(e.hash, "#")
	return u.String()
}

func normalizeHash(h string) string {
	h = strings.TrimPrefix(h, "#")
	if h == "" {
		return ""
	}
	return "#" + h
}

// newDocument exposes the read side of the DOM to script.
func (e *scriptEnv) newDocument() *goja.Object {
	vm := e.vm
	d := vm.NewObject()
	elem := func(el *HtmlElement) goja.Value {
		if el == nil {
			return goja.Null()
		}
		return e.elementValue(el)
	}
	_ = d.Set("getElementById", func(id string) goja.Value { return elem(e.doc.GetElementByID(id)) })
	_ = d.Set("querySelector", func(sel string) goja.Value { return elem(e.doc.QuerySelector(sel)) })
	_ = d.Set("querySelectorAll", func(sel string) []goja.Value {
		els := e.doc.QuerySelectorAll(sel)
		out := make([]goja.Value, len(els))
		for i, el := range els {
			out[i] = e.elementValue(el)
		}
		return out
	})
	_ = d.DefineAccessorProperty("title",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(e.doc.Title()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = d.Set("URL", e.doc.DocumentURI())
	return d
}

func (e *scriptEnv) elementValue(el *HtmlElement) goja.Value {
	vm := e.vm
	o := vm.NewObject()
	_ = o.Set("tagName", strings.ToUpper(el.TagName()))
	_ = o.Set("id", el.ID())
	_ = o.Set("getAttribute", el.GetAttribute)
	_ = o.Set("setAttribute", el.SetAttribute)
	_ = o.DefineAccessorProperty("innerText",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(el.InnerText()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return o
}

// open implements window.open. The returned object stands in for the new
// browsing context.
func (e *scriptEnv) open(call goja.FunctionCall) goja.Value {
	p := Popup{
		URL:    call.Argument(0).String(),
		Target: "",
		Time:   time.Now(),
	}
	if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		p.Target = arg.String()
	}
	if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		p.Features = arg.String()
	}
	e.popups = append(e.popups, p)
	e.logger.Debug("window.open",
		zap.String("url", p.URL),
		zap.String("target", p.Target),
		zap.String("features", p.Features),
	)

	vm := e.vm
	if vm == nil {
		return goja.Undefined()
	}
	w := vm.NewObject()
	loc := vm.NewObject()
	_ = loc.Set("href", p.URL)
	_ = loc.Set("hash", "")
	_ = w.Set("location", loc)
	_ = w.Set("name", p.Target)
	_ = w.Set("closed", false)
	return w
}

// Run evaluates script, interrupting it when ctx ends or the timeout fires.
// Script run from a callback of running script shares the outer run's
// interrupt.
func (e *scriptEnv) Run(ctx context.Context, script string) (any, error) {
	if e.held() {
		if e.vm == nil {
			return nil, ErrPageClosed
		}
		val, err := e.vm.RunString(script)
		if err != nil {
			return nil, scriptError(err)
		}
		return export(val), nil
	}

	defer e.lock()()
	vm := e.vm
	if vm == nil {
		return nil, ErrPageClosed
	}

	stop := make(chan struct{})
	var timeout <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-timeout:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := vm.RunString(script)
	close(stop)
	wg.Wait()
	vm.ClearInterrupt()
	if err != nil {
		return nil, scriptError(err)
	}
	return export(val), nil
}

// call invokes obj[name] with args. Callers hold mu.
func (e *scriptEnv) call(obj *goja.Object, name string, args ...any) (goja.Value, error) {
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFunction, name)
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = e.vm.ToValue(a)
	}
	return fn(obj, vals...)
}

// expose publishes a scriptable object as content[key].
func (e *scriptEnv) expose(key string, so *ScriptObject) error {
	defer e.lock()()
	if e.vm == nil {
		return ErrPageClosed
	}
	return e.content.Set(key, e.objectValue(so))
}

// objectValue builds the script view of a ScriptObject. Callers hold mu.
func (e *scriptEnv) objectValue(so *ScriptObject) goja.Value {
	vm := e.vm
	o := vm.NewObject()
	for _, name := range so.Methods() {
		name := name
		_ = o.Set(lowerFirst(name), func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = export(a)
			}
			res, err := so.Invoke(name, args...)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			if inner, ok := res.(*ScriptObject); ok {
				return e.objectValue(inner)
			}
			return vm.ToValue(res)
		})
	}
	for _, name := range so.Properties() {
		name := name
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
			v, err := so.GetProperty(name)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(v)
		})
		setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if err := so.SetProperty(name, export(call.Argument(0))); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		})
		_ = o.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	return o
}

// Popups returns the recorded window.open calls.
func (e *scriptEnv) Popups() []Popup {
	defer e.lock()()
	return append([]Popup(nil), e.popups...)
}

// Close drops the runtime. Script already running keeps its runtime until
// it returns.
func (e *scriptEnv) Close() {
	defer e.lock()()
	e.vm = nil
	e.window = nil
	e.content = nil
}

func export(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// scriptError unwraps a Go error thrown through script.
func scriptError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if inner := ex.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
