// Package native defines the boundary to the plugin engine and ships an
// in-process engine used by the host and by tests.
//
// The engine owns the authoritative type table. Managed classes are mirrored
// into it one at a time, parent first, and are afterwards identified by the
// TypeHandle the engine hands back.
package native

import (
	"context"
	"errors"
)

// SurfaceHandle identifies one engine surface.
type SurfaceHandle uintptr

// PluginHandle identifies one plugin instance embedded in a page.
type PluginHandle uintptr

// TypeHandle is the engine's identifier for a registered type. Zero means
// "no type" and is passed as the parent of root classes. Negative values are
// failure sentinels.
type TypeHandle int32

// NoType is the parent handle passed for classes without a managed base.
const NoType TypeHandle = 0

// FirstManagedKind is the first handle given to a managed type. Lower values
// are reserved for the engine's built-in kinds.
const FirstManagedKind TypeHandle = 256

var (
	ErrInvalidSurface = errors.New("native: invalid surface handle")
	ErrInvalidPlugin  = errors.New("native: invalid plugin handle")
	ErrInvalidParent  = errors.New("native: unknown parent type")
	ErrDuplicateType  = errors.New("native: type already registered")
	ErrTypeLimit      = errors.New("native: type table exhausted")
	ErrEmptyName      = errors.New("native: empty type name")
	ErrUnknownType    = errors.New("native: unknown type")
)

// Engine is the set of native entry points the bridge consumes.
type Engine interface {
	CreateSurface(ctx context.Context) (SurfaceHandle, error)
	DestroySurface(s SurfaceHandle) error

	// RegisterManagedType registers one class and returns its handle.
	// parent is NoType for classes without a managed base.
	RegisterManagedType(s SurfaceHandle, name string, gcHandle uintptr, parent TypeHandle) (TypeHandle, error)

	RegisterScriptableObject(p PluginHandle, key string, obj uintptr) error

	IsUserInitiatedEvent(s SurfaceHandle) bool
	UserInitiatedCounter(s SurfaceHandle) int
	AllowHTMLPopupWindow(p PluginHandle) bool
}

// Valid reports whether h is a usable type handle.
func (h TypeHandle) Valid() bool {
	return h > 0
}
