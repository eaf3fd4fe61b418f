package rendering

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Valuer is implemented by domain types that know how to describe themselves as a Value
type Valuer interface {
	ToValue() Value
}

// ErrUnsupportedType is returned by ToValue for data with no value representation
var ErrUnsupportedType = errors.New("unsupported type")

var (
	valuerType = reflect.TypeOf((*Valuer)(nil)).Elem()
	valueType  = reflect.TypeOf((*Value)(nil)).Elem()
	bytesType  = reflect.TypeOf([]byte(nil))
)

// ToValue converts domain data into a Value.
//
// Built in conversions: integers become Int, strings String, byte slices and arrays
// Bytes, nil pointers and nil interfaces Nil, other pointers their target, slices and
// arrays List, string keyed maps Map, time.Time its unix seconds, uuid.UUID its string
// form. Structs become a Map of their exported fields, named by the `rho` tag when present
// (`rho:"-"` skips the field). Types implementing Valuer convert themselves.
func ToValue(v any) (Value, error) {
	if v == nil {
		return Nil{}, nil
	}
	return convert(reflect.ValueOf(v))
}

// MustValue is like ToValue but panics on error. Intended for literals in templates and tests.
func MustValue(v any) Value {
	out, err := ToValue(v)
	if err != nil {
		panic(err)
	}
	return out
}

// TupleOf converts each element and wraps them in a Tuple
func TupleOf(values ...any) (Tuple, error) {
	out := make(Tuple, 0, len(values))
	for i, v := range values {
		converted, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

func convert(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Nil{}, nil
	}

	// Value implementations are Valuers of themselves
	if rv.Type().Implements(valueType) {
		if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) && rv.IsNil() {
			return Nil{}, nil
		}
		return rv.Interface().(Value), nil
	}
	if rv.Type().Implements(valuerType) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Nil{}, nil
		}
		return rv.Interface().(Valuer).ToValue(), nil
	}

	switch t := rv.Interface().(type) {
	case time.Time:
		return Int(t.Unix()), nil
	case uuid.UUID:
		return String(t.String()), nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Nil{}, nil
		}
		return convert(rv.Elem())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows Int", ErrUnsupportedType, u)
		}
		return Int(int64(u)), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return List{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes(rv.Convert(bytesType).Bytes()), nil
		}
		return convertList(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := make(Bytes, rv.Len())
			reflect.Copy(reflect.ValueOf([]byte(out)), rv)
			return out, nil
		}
		return convertList(rv)
	case reflect.Map:
		return convertMap(rv)
	case reflect.Struct:
		return convertStruct(rv)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

func convertList(rv reflect.Value) (Value, error) {
	out := make(List, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := convert(rv.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func convertMap(rv reflect.Value) (Value, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, rv.Type().Key())
	}

	// map[T]struct{} is how sets are spelled in Go
	if rv.Type().Elem().Kind() == reflect.Struct && rv.Type().Elem().NumField() == 0 {
		out := make(Set, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			out = append(out, String(k.String()))
		}
		return out.normalized(), nil
	}

	out := make(Map, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		v, err := convert(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
		}
		out[iter.Key().String()] = v
	}
	return out, nil
}

func convertStruct(rv reflect.Value) (Value, error) {
	t := rv.Type()
	out := make(Map, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("rho"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		v, err := convert(rv.Field(i))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		out[name] = v
	}
	return out, nil
}
