package command

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueType discriminates the variants of a Value.
type ValueType uint8

const (
	NilValue ValueType = iota
	BoolValue
	IntValue
	FloatValue
	StringValue
	ListValue
	MapValue
)

var valueTypeNames = [...]string{"nil", "bool", "int", "float", "string", "list", "map"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "ValueType(" + strconv.Itoa(int(t)) + ")"
}

// Value is a node of a command payload tree: a scalar, an ordered list, or a
// map with string keys. The zero Value is nil.
type Value struct {
	Type  ValueType
	Bool  bool
	Int   int64
	Float float64
	Str   string
	List  []Value
	Map   map[string]Value
}

func Nil() Value { return Value{} }
func Bool(b bool) Value { return Value{Type: BoolValue, Bool: b} }
func Int(i int64) Value { return Value{Type: IntValue, Int: i} }
func Float(f float64) Value { return Value{Type: FloatValue, Float: f} }
func String(s string) Value { return Value{Type: StringValue, Str: s} }
func List(items ...Value) Value { return Value{Type: ListValue, List: items} }
func Map(fields map[string]Value) Value { return Value{Type: MapValue, Map: fields} }

// Strings builds a list of string values.
func Strings(items ...string) Value {
	list := make([]Value, len(items))
	for i, s := range items {
		list[i] = String(s)
	}
	return List(list...)
}

// IsNil reports whether v is the nil variant.
func (v Value) IsNil() bool { return v.Type == NilValue }

// Lookup returns the field named key of a map value.
func (v Value) Lookup(key string) (Value, bool) {
	if v.Type != MapValue {
		return Value{}, false
	}
	f, ok := v.Map[key]
	return f, ok
}

// AsInt returns the value as an integer. Floats with no fractional part are
// accepted.
func (v Value) AsInt() (int64, bool) {
	switch v.Type {
	case IntValue:
		return v.Int, true
	case FloatValue:
		if v.Float == math.Trunc(v.Float) && !math.IsInf(v.Float, 0) {
			return int64(v.Float), true
		}
	}
	return 0, false
}

// Equal reports deep equality. Nil and empty lists or maps compare equal.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case NilValue:
		return true
	case BoolValue:
		return v.Bool == o.Bool
	case IntValue:
		return v.Int == o.Int
	case FloatValue:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	case StringValue:
		return v.Str == o.Str
	case ListValue:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case MapValue:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, a := range v.Map {
			b, ok := o.Map[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Any converts the tree to plain Go values (nil, bool, int64, float64,
// string, []any, map[string]any).
func (v Value) Any() any {
	switch v.Type {
	case BoolValue:
		return v.Bool
	case IntValue:
		return v.Int
	case FloatValue:
		return v.Float
	case StringValue:
		return v.Str
	case ListValue:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.Any()
		}
		return out
	case MapValue:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.Any()
		}
		return out
	}
	return nil
}

// FromAny converts plain Go values into a Value tree.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case []string:
		return Strings(t...), nil
	case []Value:
		return List(t...), nil
	case []any:
		list := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return List(list...), nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = v
		}
		return Map(m), nil
	}
	return Value{}, fmt.Errorf("unsupported payload type %T", x)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// String renders the value in a compact, JSON-like form with sorted keys.
func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.Type {
	case NilValue:
		b.WriteString("nil")
	case BoolValue:
		b.WriteString(strconv.FormatBool(v.Bool))
	case IntValue:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case FloatValue:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case StringValue:
		b.WriteString(strconv.Quote(v.Str))
	case ListValue:
		b.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteByte(']')
	case MapValue:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			v.Map[k].write(b)
		}
		b.WriteByte('}')
	}
}
