package browser

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/moonbridge/internal/handles"
)

// scriptTag marks struct fields that script may read and write.
const scriptTag = "script"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ScriptObject wraps a managed value so script can call its exported
// methods and touch its script-tagged fields.
type ScriptObject struct {
	value  any
	rv     reflect.Value
	handle handles.Handle
}

// NewScriptObject wraps v. A value that is already a *ScriptObject is
// returned unchanged.
func NewScriptObject(v any) *ScriptObject {
	if so, ok := v.(*ScriptObject); ok {
		return so
	}
	return &ScriptObject{value: v, rv: reflect.ValueOf(v)}
}

// ManagedObject returns the wrapped value.
func (o *ScriptObject) ManagedObject() any { return o.value }

// Handle returns the pinned handle, or zero if the object was never pinned.
func (o *ScriptObject) Handle() handles.Handle { return o.handle }

// Methods lists the callable member names.
func (o *ScriptObject) Methods() []string {
	t := o.rv.Type()
	names := make([]string, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, t.Method(i).Name)
	}
	return names
}

// Properties lists the script-tagged field names.
func (o *ScriptObject) Properties() []string {
	st, ok := structType(o.rv.Type())
	if !ok {
		return nil
	}
	var names []string
	for i := 0; i < st.NumField(); i++ {
		if name, ok := scriptName(st.Field(i)); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Invoke calls the named method. Arguments are converted to the parameter
// types; a trailing error result is returned as the call's error.
func (o *ScriptObject) Invoke(name string, args ...any) (any, error) {
	m := o.method(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMember, name)
	}
	mt := m.Type()
	if mt.IsVariadic() {
		if len(args) < mt.NumIn()-1 {
			return nil, fmt.Errorf("%w: %s wants at least %d, got %d", ErrArgumentCount, name, mt.NumIn()-1, len(args))
		}
	} else if len(args) != mt.NumIn() {
		return nil, fmt.Errorf("%w: %s wants %d, got %d", ErrArgumentCount, name, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		pt := paramType(mt, i)
		v, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
		}
		in[i] = v
	}

	return unpackResults(m.Call(in))
}

func (o *ScriptObject) method(name string) reflect.Value {
	if m := o.rv.MethodByName(name); m.IsValid() {
		return m
	}
	t := o.rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		if strings.EqualFold(t.Method(i).Name, name) {
			return o.rv.Method(i)
		}
	}
	return reflect.Value{}
}

func paramType(mt reflect.Type, i int) reflect.Type {
	if mt.IsVariadic() && i >= mt.NumIn()-1 {
		return mt.In(mt.NumIn() - 1).Elem()
	}
	return mt.In(i)
}

func unpackResults(out []reflect.Value) (any, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		vals := make([]any, len(out))
		for i, v := range out {
			vals[i] = v.Interface()
		}
		return vals, nil
	}
}

// GetProperty reads a script-tagged field.
func (o *ScriptObject) GetProperty(name string) (any, error) {
	f, err := o.field(name)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

// SetProperty writes a script-tagged field. The object must wrap a pointer.
func (o *ScriptObject) SetProperty(name string, value any) error {
	f, err := o.field(name)
	if err != nil {
		return err
	}
	if !f.CanSet() {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	v, err := convertArg(value, f.Type())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	f.Set(v)
	return nil
}

func (o *ScriptObject) field(name string) (reflect.Value, error) {
	rv := o.rv
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrNoSuchMember, name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		st := rv.Type()
		for i := 0; i < st.NumField(); i++ {
			if n, ok := scriptName(st.Field(i)); ok && n == name {
				return rv.Field(i), nil
			}
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", ErrNoSuchMember, name)
}

// ConvertTo copies the managed value into target, which must be a non-nil
// pointer, going through its JSON form.
func (o *ScriptObject) ConvertTo(target any) error {
	rt := reflect.ValueOf(target)
	if rt.Kind() != reflect.Pointer || rt.IsNil() {
		return errors.New("browser: ConvertTo target must be a non-nil pointer")
	}
	data, err := sonic.Marshal(o.value)
	if err != nil {
		return fmt.Errorf("convert %T: %w", o.value, err)
	}
	if err := sonic.Unmarshal(data, target); err != nil {
		return fmt.Errorf("convert %T to %T: %w", o.value, target, err)
	}
	return nil
}

// convertArg turns a script value into a value of type t. Numbers convert
// across kinds; anything else goes through JSON.
func convertArg(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}
	if so, ok := arg.(*ScriptObject); ok && !reflect.TypeOf(so).AssignableTo(t) {
		arg = so.value
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(t.Kind()) {
		return v.Convert(t), nil
	}
	data, err := sonic.Marshal(arg)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(t)
	if err := sonic.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", arg, t, err)
	}
	return ptr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func structType(t reflect.Type) (reflect.Type, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t, t.Kind() == reflect.Struct
}

func scriptName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag, ok := f.Tag.Lookup(scriptTag)
	if !ok || tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return f.Name, true
}

// isPublic reports whether t (or what it points to) is a named exported type.
func isPublic(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name() != "" && token.IsExported(t.Name())
}

// isScriptable reports whether t has a callable method or a script field.
func isScriptable(t reflect.Type) bool {
	if t.NumMethod() > 0 {
		return true
	}
	st, ok := structType(t)
	if !ok {
		return false
	}
	for i := 0; i < st.NumField(); i++ {
		if _, ok := scriptName(st.Field(i)); ok {
			return true
		}
	}
	return false
}

// isCreateable reports whether t is an exported struct (or pointer to one)
// that script may instantiate.
func isCreateable(t reflect.Type) bool {
	st, ok := structType(t)
	return ok && isPublic(st)
}
