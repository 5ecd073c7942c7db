package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if len(id1.String()) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id1.String()))
	}
}

func TestTypedIDGeneration(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"surface", NewSurfaceID().String(), SurfacePrefix},
		{"plugin", NewPluginID().String(), PluginPrefix},
		{"request", NewRequestID().String(), RequestPrefix},
		{"subscriber", NewSubscriberID().String(), SubscriberPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix+"_") {
				t.Errorf("ID should start with '%s_', got: %s", tt.prefix, tt.id)
			}

			prefix, u, err := Split(tt.id)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if prefix != tt.prefix {
				t.Errorf("Split prefix = %s, want %s", prefix, tt.prefix)
			}
			if !IsValid(u.String()) {
				t.Errorf("ULID part should be valid: %s", u)
			}
		})
	}
}

func TestSplitErrors(t *testing.T) {
	for _, bad := range []string{"", "noprefix", "srf_notaulid"} {
		if _, _, err := Split(bad); err == nil {
			t.Errorf("Split(%q) should fail", bad)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewSurfaceID().String())
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("Timestamp out of range: %v", ts)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const n = 100
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[SurfaceID]bool, n)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := NewSurfaceID()
			mu.Lock()
			ids[sid] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("Expected %d unique IDs, got %d", n, len(ids))
	}
}

func TestLexicographicSorting(t *testing.T) {
	gen := NewGenerator()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("IDs from one generator should sort in creation order")
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	for i := 0; i < b.N; i++ {
		gen.GenerateWithPrefix(SurfacePrefix)
	}
}
