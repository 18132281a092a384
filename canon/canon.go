// Package canon normalizes arbitrary value graphs into a deterministic byte
// sequence suitable for hashing: maps sort by key, sets sort by element,
// duck-typed array-likes encode their raw bytes instead of a textual
// representation, and structs walk their fields instead of a pointer
// address. Two calls with semantically equivalent arguments always produce
// identical bytes.
package canon

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Shaped is implemented by duck-typed array-like values (the Go analogue of
// a numpy array exposing shape/dtype/tobytes). Values implementing Shaped
// are canonicalized by their raw bytes, never by a textual rendering.
type Shaped interface {
	Shape() []int
	DType() string
	Bytes() []byte
}

// atom is the canonical intermediate form fed to the binary codec. It uses
// only types msgpack encodes unambiguously: nil, bool, int64, float64,
// string, []byte, and []any (ordered sequences of further atoms).
type atom = any

const (
	tagArray   = "__array__"
	tagStruct  = "__struct__"
	tagNaN     = "__nan__"
	tagPosInf  = "__+inf__"
	tagNegInf  = "__-inf__"
)

// Encode recursively canonicalizes value and returns its deterministic
// binary encoding.
func Encode(value any) ([]byte, error) {
	form := canonicalize(reflect.ValueOf(value))
	buf, err := msgpack.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("canon: encoding canonical form: %w", err)
	}
	return buf, nil
}

func canonicalize(v reflect.Value) atom {
	if !v.IsValid() {
		return nil
	}

	// Unwrap interfaces to their concrete dynamic value.
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		return canonicalize(v.Elem())
	}

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return canonicalize(v.Elem())
	}

	if shaped, ok := asShaped(v); ok {
		shape := make([]atom, len(shaped.Shape()))
		for i, d := range shaped.Shape() {
			shape[i] = int64(d)
		}
		return []atom{tagArray, shape, shaped.DType(), shaped.Bytes()}
	}

	switch v.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return canonicalizeFloat(v.Float())
	case reflect.String:
		return v.String()
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes()
		}
		return canonicalizeSequence(v)
	case reflect.Array:
		return canonicalizeSequence(v)
	case reflect.Map:
		return canonicalizeMap(v)
	case reflect.Struct:
		return canonicalizeStruct(v)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func canonicalizeFloat(f float64) atom {
	switch {
	case math.IsNaN(f):
		return tagNaN
	case math.IsInf(f, 1):
		return tagPosInf
	case math.IsInf(f, -1):
		return tagNegInf
	default:
		return f
	}
}

func canonicalizeSequence(v reflect.Value) atom {
	out := make([]atom, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = canonicalize(v.Index(i))
	}
	return out
}

// canonicalizeMap handles both true maps and sets (represented as
// map[T]struct{}, the idiomatic Go set encoding): keys are always sorted by
// their own canonical bytes. For a set the pair is collapsed to just the key,
// matching the "sets become a sorted sequence" rule; every other map,
// including map[T]bool, is emitted as sorted [key, value] pairs.
func canonicalizeMap(v reflect.Value) atom {
	type entry struct {
		keyAtom   atom
		keyBytes  []byte
		valueAtom atom
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := canonicalize(iter.Key())
		val := canonicalize(iter.Value())
		kb, _ := msgpack.Marshal(k)
		entries = append(entries, entry{keyAtom: k, keyBytes: kb, valueAtom: val})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].keyBytes) < string(entries[j].keyBytes)
	})

	if v.Type().Elem().Kind() == reflect.Struct && v.Type().Elem().NumField() == 0 {
		out := make([]atom, len(entries))
		for i, e := range entries {
			out[i] = e.keyAtom
		}
		return out
	}

	out := make([]atom, len(entries))
	for i, e := range entries {
		out[i] = []atom{e.keyAtom, e.valueAtom}
	}
	return out
}

func canonicalizeStruct(v reflect.Value) atom {
	t := v.Type()
	fields := make(map[string]atom, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fields[f.Name] = canonicalize(v.Field(i))
	}
	return []atom{tagStruct, t.Name(), canonicalizeMap(reflect.ValueOf(fields))}
}

func asShaped(v reflect.Value) (Shaped, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	s, ok := v.Interface().(Shaped)
	return s, ok
}
