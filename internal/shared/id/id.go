// Package id provides prefixed ULID identifiers for host objects.
//
// IDs are lexicographically sortable by creation time and carry a short
// prefix naming what they identify (srf_*, plg_*, req_*), which keeps logs
// readable when several surfaces share one process.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SurfaceID identifies an engine surface
type SurfaceID string

// PluginID identifies a plugin instance embedded in a page
type PluginID string

// RequestID identifies an API request
type RequestID string

// SubscriberID identifies an event stream subscriber
type SubscriberID string

const (
	SurfacePrefix    = "srf"
	PluginPrefix     = "plg"
	RequestPrefix    = "req"
	SubscriberPrefix = "sub"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSurfaceID generates a new surface ID
func NewSurfaceID() SurfaceID {
	return SurfaceID(Default().GenerateWithPrefix(SurfacePrefix))
}

// NewPluginID generates a new plugin ID
func NewPluginID() PluginID {
	return PluginID(Default().GenerateWithPrefix(PluginPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSubscriberID generates a new subscriber ID
func NewSubscriberID() SubscriberID {
	return SubscriberID(Default().GenerateWithPrefix(SubscriberPrefix))
}

func (id SurfaceID) String() string    { return string(id) }
func (id PluginID) String() string     { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id SubscriberID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Split separates a prefixed ID into its prefix and ULID.
func Split(prefixed string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(prefixed, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", prefixed)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", prefixed, err)
	}
	return prefix, u, nil
}

// Timestamp extracts the creation time from a prefixed ID
func Timestamp(prefixed string) (time.Time, error) {
	_, u, err := Split(prefixed)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
