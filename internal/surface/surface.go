package surface

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/moonbridge/internal/handles"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/moonbridge/internal/native"
	"github.com/GriffinCanCode/moonbridge/internal/shared/id"
)

// TypeDescriptor records one class's registration with the engine.
type TypeDescriptor struct {
	Class Class
	// Handle pins Class for the engine until the Surface closes.
	Handle handles.Handle
	// Parent is nil for classes without a managed base.
	Parent *TypeDescriptor
	// NativeHandle is valid only while the owning Surface is open.
	NativeHandle native.TypeHandle
}

// Name returns the class's fully-qualified name.
func (td *TypeDescriptor) Name() string {
	return td.Class.FullName()
}

// ParentHandle returns the parent's native handle, or native.NoType.
func (td *TypeDescriptor) ParentHandle() native.TypeHandle {
	if td.Parent == nil {
		return native.NoType
	}
	return td.Parent.NativeHandle
}

func (td *TypeDescriptor) String() string {
	return fmt.Sprintf("%s#%d", td.Name(), td.NativeHandle)
}

// Options configures a Surface.
type Options struct {
	Engine  native.Engine
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Handles pins classes for the engine. A private table is used when nil.
	Handles *handles.Table
}

// Surface is the managed-side handle to one engine surface and owns the
// registry of classes mirrored into it.
type Surface struct {
	id      id.SurfaceID
	engine  native.Engine
	native  native.SurfaceHandle
	logger  *zap.Logger
	metrics *monitoring.Metrics
	pins    *handles.Table

	mu       sync.RWMutex
	types    map[Class]*TypeDescriptor
	byNative map[native.TypeHandle]*TypeDescriptor
	byName   map[string]*TypeDescriptor
	order    []*TypeDescriptor
	closed   bool
	failed   error

	closeOnce sync.Once
	closeErr  error

	events *eventHub
}

// New creates an engine surface and wraps it.
func New(ctx context.Context, opts Options) (*Surface, error) {
	if opts.Engine == nil {
		return nil, errors.New("surface: engine is required")
	}
	h, err := opts.Engine.CreateSurface(ctx)
	if err != nil {
		return nil, fmt.Errorf("surface: create native surface: %w", err)
	}
	return Wrap(h, opts), nil
}

// Wrap takes ownership of an existing engine surface. Close destroys it.
func Wrap(h native.SurfaceHandle, opts Options) *Surface {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pins := opts.Handles
	if pins == nil {
		pins = handles.NewTable()
	}

	s := &Surface{
		id:       id.NewSurfaceID(),
		engine:   opts.Engine,
		native:   h,
		metrics:  opts.Metrics,
		pins:     pins,
		types:    make(map[Class]*TypeDescriptor),
		byNative: make(map[native.TypeHandle]*TypeDescriptor),
		byName:   make(map[string]*TypeDescriptor),
		events:   newEventHub(),
	}
	s.logger = logger.Named("surface").With(zap.String("surface_id", s.id.String()))
	s.metrics.IncSurfaces()
	return s
}

// ID returns the surface's identifier.
func (s *Surface) ID() id.SurfaceID { return s.id }

// Native returns the engine handle of the surface.
func (s *Surface) Native() native.SurfaceHandle { return s.native }

// Engine returns the engine the surface belongs to.
func (s *Surface) Engine() native.Engine { return s.engine }

// Resolve returns c's descriptor, registering c and any unregistered
// ancestors with the engine first. Ancestors are registered root first, each
// with its parent's native handle.
func (s *Surface) Resolve(c Class) (*TypeDescriptor, error) {
	if isNil(c) {
		return nil, ErrNilClass
	}

	s.mu.RLock()
	if err := s.usableLocked(); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	if td, ok := s.types[c]; ok {
		s.mu.RUnlock()
		s.metrics.RecordResolve(true)
		return td, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	td, created, err := s.resolveLocked(c)
	s.mu.Unlock()

	s.metrics.RecordResolve(len(created) == 0 && err == nil)
	for _, d := range created {
		s.events.publish(s.newEvent(d))
	}
	return td, err
}

// resolveLocked collects the unregistered part of c's ancestry, then
// registers it from the root down. Must be called with s.mu held.
func (s *Surface) resolveLocked(c Class) (*TypeDescriptor, []*TypeDescriptor, error) {
	var (
		pending []Class
		parent  *TypeDescriptor
		seen    = make(map[Class]struct{})
	)
	for cur := c; !isNil(cur); cur = cur.Base() {
		if td, ok := s.types[cur]; ok {
			parent = td
			break
		}
		if _, loop := seen[cur]; loop {
			return nil, nil, fmt.Errorf("%w: %s", ErrInheritanceCycle, c.FullName())
		}
		seen[cur] = struct{}{}
		pending = append(pending, cur)
	}

	// The engine keys types by name.
	names := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		name := p.FullName()
		_, taken := s.byName[name]
		_, twice := names[name]
		if taken || twice {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		names[name] = struct{}{}
	}

	created := make([]*TypeDescriptor, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		td, err := s.registerLocked(pending[i], parent)
		if err != nil {
			return nil, created, err
		}
		created = append(created, td)
		parent = td
	}
	return parent, created, nil
}

func (s *Surface) registerLocked(c Class, parent *TypeDescriptor) (*TypeDescriptor, error) {
	if existing, dup := s.types[c]; dup {
		panic(fmt.Sprintf("surface: duplicate registration of %s (already %s)", c.FullName(), existing))
	}

	name := c.FullName()
	h := s.pins.Pin(c)
	parentNative := native.NoType
	if parent != nil {
		parentNative = parent.NativeHandle
	}

	nh, err := s.engine.RegisterManagedType(s.native, name, h.Ptr(), parentNative)
	if err != nil || !nh.Valid() {
		if uerr := s.pins.Unpin(h); uerr != nil {
			s.logger.Warn("failed to release handle of rejected type", zap.String("type", name), zap.Error(uerr))
		}
		regErr := &RegistrationError{Class: name, Parent: parentNative, Handle: nh, Err: err}
		s.failed = regErr
		s.metrics.RecordRegistrationFailure()
		s.logger.Error("native type registration failed; surface disabled",
			zap.String("type", name),
			zap.Int32("parent", int32(parentNative)),
			zap.Error(regErr),
		)
		return nil, regErr
	}

	td := &TypeDescriptor{
		Class:        c,
		Handle:       h,
		Parent:       parent,
		NativeHandle: nh,
	}
	s.types[c] = td
	s.byNative[nh] = td
	s.byName[name] = td
	s.order = append(s.order, td)
	s.metrics.RecordTypeRegistered()

	s.logger.Debug("registered managed type",
		zap.String("type", name),
		zap.Int32("native_handle", int32(nh)),
		zap.Int32("parent", int32(parentNative)),
	)
	return td, nil
}

func (s *Surface) usableLocked() error {
	if s.closed {
		return ErrSurfaceClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceFailed, s.failed)
	}
	return nil
}

// Lookup returns c's descriptor without registering anything.
func (s *Surface) Lookup(c Class) (*TypeDescriptor, bool) {
	if isNil(c) {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	td, ok := s.types[c]
	return td, ok
}

// LookupNative returns the descriptor registered under an engine handle.
func (s *Surface) LookupNative(h native.TypeHandle) (*TypeDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td, ok := s.byNative[h]
	return td, ok
}

// LookupName returns the descriptor of the registered class named name.
func (s *Surface) LookupName(name string) (*TypeDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td, ok := s.byName[name]
	return td, ok
}

// ClassOfHandle returns the class pinned under a handle the engine handed
// back, e.g. when it asks for an instance of a managed type.
func (s *Surface) ClassOfHandle(h uintptr) (Class, bool) {
	v, ok := s.pins.Value(handles.Handle(h))
	if !ok {
		return nil, false
	}
	c, ok := v.(Class)
	return c, ok
}

// Chain returns the registered ancestry of c, root first and c last.
func (s *Surface) Chain(c Class) ([]*TypeDescriptor, error) {
	td, ok := s.Lookup(c)
	if !ok {
		return nil, ErrNotRegistered
	}
	var chain []*TypeDescriptor
	for cur := td; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descriptors returns a snapshot of all registered descriptors ordered by
// native handle, which is registration order.
func (s *Surface) Descriptors() []*TypeDescriptor {
	s.mu.RLock()
	out := append([]*TypeDescriptor(nil), s.order...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].NativeHandle < out[j].NativeHandle })
	return out
}

// Len returns the number of registered classes.
func (s *Surface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.types)
}

// Err returns the registration failure that disabled the surface, if any.
func (s *Surface) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed
}

// Closed reports whether Close has been called.
func (s *Surface) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close releases every pinned handle and then destroys the engine surface.
// It runs once; later calls return the first result. Handle release
// failures are logged as leaks and do not stop the teardown.
func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		descs := s.order
		s.order = nil
		s.types = make(map[Class]*TypeDescriptor)
		s.byNative = make(map[native.TypeHandle]*TypeDescriptor)
		s.byName = make(map[string]*TypeDescriptor)
		s.mu.Unlock()

		var errs []error
		released := 0
		for _, td := range descs {
			if err := s.pins.Unpin(td.Handle); err != nil {
				s.logger.Warn("pinned handle leaked during teardown",
					zap.String("type", td.Name()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("release %s: %w", td.Name(), err))
				continue
			}
			released++
		}
		s.metrics.RecordHandlesReleased(released)

		if err := s.engine.DestroySurface(s.native); err != nil {
			errs = append(errs, fmt.Errorf("destroy native surface: %w", err))
		}
		s.metrics.DecSurfaces()
		s.events.close()

		s.closeErr = errors.Join(errs...)
		s.logger.Info("surface closed",
			zap.Int("types", len(descs)),
			zap.Int("released", released),
			zap.Duration("lifetime", time.Since(s.createdAt())),
		)
	})
	return s.closeErr
}

func (s *Surface) createdAt() time.Time {
	t, err := id.Timestamp(s.id.String())
	if err != nil {
		return time.Now()
	}
	return t
}
