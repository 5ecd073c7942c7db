package native

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Type is one entry of a surface's type table.
type Type struct {
	Kind     TypeHandle
	Parent   TypeHandle
	Name     string
	GCHandle uintptr
}

// PluginOptions configures a plugin instance.
type PluginOptions struct {
	AllowHTMLPopupWindow bool
}

// RuntimeConfig configures the in-process engine.
type RuntimeConfig struct {
	// MaxTypes caps the type table of each surface. Zero means unlimited.
	MaxTypes int
}

type surfaceState struct {
	types         map[TypeHandle]*Type
	byName        map[string]TypeHandle
	next          TypeHandle
	userInitiated bool
	userCounter   int
}

type pluginState struct {
	opts       PluginOptions
	scriptable map[string]uintptr
}

var _ Engine = (*Runtime)(nil)

// Runtime is an in-process Engine.
type Runtime struct {
	config RuntimeConfig
	logger *zap.Logger

	mu          sync.RWMutex
	surfaces    map[SurfaceHandle]*surfaceState
	plugins     map[PluginHandle]*pluginState
	nextSurface SurfaceHandle
	nextPlugin  PluginHandle
}

// NewRuntime creates an in-process engine.
func NewRuntime(config RuntimeConfig, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		config:      config,
		logger:      logger.Named("native"),
		surfaces:    make(map[SurfaceHandle]*surfaceState),
		plugins:     make(map[PluginHandle]*pluginState),
		nextSurface: 1,
		nextPlugin:  1,
	}
}

// CreateSurface allocates a new surface with an empty type table.
func (r *Runtime) CreateSurface(ctx context.Context) (SurfaceHandle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.nextSurface
	r.nextSurface++
	r.surfaces[h] = &surfaceState{
		types:  make(map[TypeHandle]*Type),
		byName: make(map[string]TypeHandle),
		next:   FirstManagedKind,
	}
	r.logger.Debug("surface created", zap.Uint64("surface", uint64(h)))
	return h, nil
}

// DestroySurface drops the surface and its type table.
func (r *Runtime) DestroySurface(s SurfaceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.surfaces[s]; !ok {
		return ErrInvalidSurface
	}
	delete(r.surfaces, s)
	r.logger.Debug("surface destroyed", zap.Uint64("surface", uint64(s)))
	return nil
}

// RegisterManagedType adds a managed class to the surface's type table.
func (r *Runtime) RegisterManagedType(s SurfaceHandle, name string, gcHandle uintptr, parent TypeHandle) (TypeHandle, error) {
	if name == "" {
		return -1, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.surfaces[s]
	if !ok {
		return -1, ErrInvalidSurface
	}
	if parent != NoType {
		if _, ok := st.types[parent]; !ok {
			return -1, fmt.Errorf("%w: %d", ErrInvalidParent, parent)
		}
	}
	if _, dup := st.byName[name]; dup {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	if r.config.MaxTypes > 0 && len(st.types) >= r.config.MaxTypes {
		return -1, ErrTypeLimit
	}

	kind := st.next
	st.next++
	st.types[kind] = &Type{
		Kind:     kind,
		Parent:   parent,
		Name:     name,
		GCHandle: gcHandle,
	}
	st.byName[name] = kind

	r.logger.Debug("managed type registered",
		zap.String("type", name),
		zap.Int32("kind", int32(kind)),
		zap.Int32("parent", int32(parent)),
	)
	return kind, nil
}

// FindType looks a type up by name.
func (r *Runtime) FindType(s SurfaceHandle, name string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.surfaces[s]
	if !ok {
		return Type{}, ErrInvalidSurface
	}
	kind, ok := st.byName[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return *st.types[kind], nil
}

// TypeInfo returns the table entry for kind.
func (r *Runtime) TypeInfo(s SurfaceHandle, kind TypeHandle) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.surfaces[s]
	if !ok {
		return Type{}, ErrInvalidSurface
	}
	t, ok := st.types[kind]
	if !ok {
		return Type{}, fmt.Errorf("%w: %d", ErrUnknownType, kind)
	}
	return *t, nil
}

// IsSubclassOf reports whether kind equals super or derives from it.
func (r *Runtime) IsSubclassOf(s SurfaceHandle, kind, super TypeHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.surfaces[s]
	if !ok {
		return false
	}
	for kind != NoType {
		if kind == super {
			return true
		}
		t, ok := st.types[kind]
		if !ok {
			return false
		}
		kind = t.Parent
	}
	return false
}

// Types returns the surface's type table ordered by kind.
func (r *Runtime) Types(s SurfaceHandle) []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.surfaces[s]
	if !ok {
		return nil
	}
	out := make([]Type, 0, len(st.types))
	for _, t := range st.types {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// BeginUserInitiatedEvent marks the start of a user-initiated event such as
// a click. Each event bumps the surface's counter.
func (r *Runtime) BeginUserInitiatedEvent(s SurfaceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.surfaces[s]
	if !ok {
		return ErrInvalidSurface
	}
	st.userInitiated = true
	st.userCounter++
	return nil
}

// EndUserInitiatedEvent marks the end of the current user-initiated event.
func (r *Runtime) EndUserInitiatedEvent(s SurfaceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.surfaces[s]
	if !ok {
		return ErrInvalidSurface
	}
	st.userInitiated = false
	return nil
}

// IsUserInitiatedEvent reports whether a user-initiated event is in progress.
func (r *Runtime) IsUserInitiatedEvent(s SurfaceHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.surfaces[s]
	return ok && st.userInitiated
}

// UserInitiatedCounter returns how many user-initiated events have started.
func (r *Runtime) UserInitiatedCounter(s SurfaceHandle) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if st, ok := r.surfaces[s]; ok {
		return st.userCounter
	}
	return 0
}

// CreatePlugin allocates a plugin instance.
func (r *Runtime) CreatePlugin(opts PluginOptions) PluginHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.nextPlugin
	r.nextPlugin++
	r.plugins[h] = &pluginState{
		opts:       opts,
		scriptable: make(map[string]uintptr),
	}
	return h
}

// DestroyPlugin drops a plugin instance and its scriptable objects.
func (r *Runtime) DestroyPlugin(p PluginHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[p]; !ok {
		return ErrInvalidPlugin
	}
	delete(r.plugins, p)
	return nil
}

// RegisterScriptableObject exposes obj to page script under key. A later
// registration under the same key replaces the earlier one.
func (r *Runtime) RegisterScriptableObject(p PluginHandle, key string, obj uintptr) error {
	if key == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.plugins[p]
	if !ok {
		return ErrInvalidPlugin
	}
	st.scriptable[key] = obj
	r.logger.Debug("scriptable object registered", zap.String("key", key))
	return nil
}

// ScriptableObject returns the object registered under key.
func (r *Runtime) ScriptableObject(p PluginHandle, key string) (uintptr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.plugins[p]
	if !ok {
		return 0, false
	}
	obj, ok := st.scriptable[key]
	return obj, ok
}

// AllowHTMLPopupWindow reports the plugin's popup policy.
func (r *Runtime) AllowHTMLPopupWindow(p PluginHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.plugins[p]
	return ok && st.opts.AllowHTMLPopupWindow
}
