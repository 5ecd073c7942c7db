package browser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Greeter struct {
	Name  string `json:"name" script:"name"`
	Count int    `json:"count" script:",omitempty"`
	Skip  bool   `script:"-"`
}

func (g *Greeter) Greet(prefix string) string { return prefix + " " + g.Name }

func (g *Greeter) Join(sep string, parts ...string) string { return strings.Join(parts, sep) }

func (g *Greeter) Bump() { g.Count++ }

func (g *Greeter) Pair() (string, int) { return g.Name, g.Count }

func (g *Greeter) Move(p Point) int { return p.X + p.Y }

func TestScriptObjectInvoke(t *testing.T) {
	g := &Greeter{Name: "moon"}
	so := NewScriptObject(g)

	v, err := so.Invoke("Greet", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello moon", v)

	v, err = so.Invoke("greet", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi moon", v, "first letter is case-insensitive")

	v, err = so.Invoke("Join", "-", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", v)

	v, err = so.Invoke("Bump")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, g.Count)

	v, err = so.Invoke("Pair")
	require.NoError(t, err)
	assert.Equal(t, []any{"moon", 1}, v)

	v, err = so.Invoke("Move", map[string]any{"x": int64(2), "y": int64(5)})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = so.Invoke("Missing")
	assert.ErrorIs(t, err, ErrNoSuchMember)
	_, err = so.Invoke("Greet")
	assert.ErrorIs(t, err, ErrArgumentCount)
	_, err = so.Invoke("Join")
	assert.ErrorIs(t, err, ErrArgumentCount)
}

func TestScriptObjectProperties(t *testing.T) {
	g := &Greeter{Name: "moon"}
	so := NewScriptObject(g)

	assert.Equal(t, []string{"Count", "name"}, so.Properties())

	v, err := so.GetProperty("name")
	require.NoError(t, err)
	assert.Equal(t, "moon", v)

	require.NoError(t, so.SetProperty("Count", 4.0))
	assert.Equal(t, 4, g.Count)

	_, err = so.GetProperty("Skip")
	assert.ErrorIs(t, err, ErrNoSuchMember)

	byValue := NewScriptObject(Greeter{Name: "copy"})
	assert.ErrorIs(t, byValue.SetProperty("name", "x"), ErrReadOnly)
}

func TestScriptObjectConvertTo(t *testing.T) {
	so := NewScriptObject(&Greeter{Name: "moon", Count: 3})

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, so.ConvertTo(&out))
	assert.Equal(t, "moon", out.Name)
	assert.Equal(t, 3, out.Count)

	var m map[string]any
	require.NoError(t, so.ConvertTo(&m))
	assert.Equal(t, "moon", m["name"])

	assert.Error(t, so.ConvertTo(out))
	assert.Error(t, so.ConvertTo(nil))
}

func TestNewScriptObjectKeepsWrapper(t *testing.T) {
	so := NewScriptObject(&Greeter{})
	assert.Same(t, so, NewScriptObject(so))
}

func TestTypeChecks(t *testing.T) {
	tests := []struct {
		name       string
		typ        reflect.Type
		public     bool
		scriptable bool
		createable bool
	}{
		{"pointer with methods", reflect.TypeOf(&Greeter{}), true, true, true},
		{"struct with script fields", reflect.TypeOf(Point{}), true, true, true},
		{"plain struct", reflect.TypeOf(Plain{}), true, false, true},
		{"private type", reflect.TypeOf(hidden{}), false, true, false},
		{"builtin", reflect.TypeOf(0), false, false, false},
		{"slice", reflect.TypeOf([]int{}), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.public, isPublic(tt.typ))
			assert.Equal(t, tt.scriptable, isScriptable(tt.typ))
			assert.Equal(t, tt.createable, isCreateable(tt.typ))
		})
	}
}

func TestCheckName(t *testing.T) {
	assert.ErrorIs(t, checkName(""), ErrEmptyName)
	assert.ErrorIs(t, checkName("a\x00b"), ErrNameHasNull)
	assert.NoError(t, checkName("ok"))
}
