package cache

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// BindingSerializer turns the positional bound parameters of a query into a
// stable byte representation. Identical bindings must always produce identical
// bytes; values that cannot be represented stably must fail.
type BindingSerializer interface {
	SerializeBindings(bindings []any) ([]byte, error)
}

// msgpackSerializer is the default BindingSerializer.
type msgpackSerializer struct{}

// NewMsgpackSerializer returns a BindingSerializer that encodes bindings as a
// msgpack array with map keys sorted.
func NewMsgpackSerializer() BindingSerializer {
	return &msgpackSerializer{}
}

func (s *msgpackSerializer) SerializeBindings(bindings []any) ([]byte, error) {
	normalized := make([]any, len(bindings))
	for i, arg := range bindings {
		v, err := normalizeBinding(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "binding %d", i)
		}
		normalized[i] = v
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// resolveValuer returns the value the driver would bind for valuer. A nil
// pointer binds as NULL.
func resolveValuer(valuer driver.Valuer, rv reflect.Value) (any, error) {
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	value, err := valuer.Value()
	if err != nil {
		return nil, errors.Wrapf(err, "value of %s", rv.Type())
	}
	if _, ok := value.(driver.Valuer); ok {
		return nil, errors.Newf("value of %s is itself a driver.Valuer", rv.Type())
	}
	return value, nil
}

// normalizeBinding rewrites a binding into a form msgpack encodes without
// losing state: Valuers are resolved, pointers dereferenced and structs
// without their own encoding reduced to their exported fields. A struct with
// no exported fields is rejected since every value would encode alike.
func normalizeBinding(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	if valuer, ok := v.(driver.Valuer); ok {
		resolved, err := resolveValuer(valuer, rv)
		if err != nil {
			return nil, err
		}
		return normalizeBinding(resolved)
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeBinding(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil
		}
		return normalizeList(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil
		}
		return normalizeList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return v, nil
		}
		return normalizeMap(rv)
	case reflect.Struct:
		return normalizeStruct(v, rv)
	}
	return v, nil
}

func normalizeList(rv reflect.Value) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		elem, err := normalizeBinding(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

// normalizeMap keeps the key type so sorted key encoding still applies.
func normalizeMap(rv reflect.Value) (any, error) {
	out := reflect.MakeMapWithSize(reflect.MapOf(rv.Type().Key(), anyType), rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		elem, err := normalizeBinding(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		value := reflect.New(anyType).Elem()
		if elem != nil {
			value.Set(reflect.ValueOf(elem))
		}
		out.SetMapIndex(iter.Key(), value)
	}
	return out.Interface(), nil
}

func normalizeStruct(v any, rv reflect.Value) (any, error) {
	switch v.(type) {
	case time.Time, msgpack.CustomEncoder, msgpack.Marshaler, encoding.BinaryMarshaler, encoding.TextMarshaler:
		return v, nil
	}

	rt := rv.Type()
	fields := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		value, err := normalizeBinding(rv.Field(i).Interface())
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", field.Name)
		}
		fields[field.Name] = value
	}

	if len(fields) == 0 {
		if stringer, ok := v.(fmt.Stringer); ok {
			return stringer.String(), nil
		}
		return nil, errors.Newf("binding type %s has no exported fields", rt)
	}
	return fields, nil
}

// textSerializer renders bindings as readable text using reflection. Function
// and channel values have no stable representation and are rejected, as are
// structs that expose no fields and no encoding of their own.
type textSerializer struct{}

// NewTextSerializer returns a reflection based BindingSerializer whose output is
// human readable, which makes keys easy to inspect in fixtures.
func NewTextSerializer() BindingSerializer {
	return &textSerializer{}
}

func (s *textSerializer) SerializeBindings(bindings []any) ([]byte, error) {
	parts := make([]string, len(bindings))
	for i, arg := range bindings {
		v, err := s.serializeValue(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "binding %d", i)
		}
		parts[i] = v
	}
	return []byte(fmt.Sprintf("bindings[%d]:{%s}", len(parts), strings.Join(parts, ","))), nil
}

func (s *textSerializer) serializeValue(v any) (string, error) {
	if v == nil {
		return "nil", nil
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if valuer, ok := v.(driver.Valuer); ok {
		resolved, err := resolveValuer(valuer, rv)
		if err != nil {
			return "", err
		}
		return s.serializeValue(resolved)
	}

	switch rt.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", errors.Newf("unsupported binding type %s", rt)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil", nil
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "nil", nil
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil", nil
		}
		if rt.Elem().Kind() == reflect.Uint8 {
			return "bytes:" + strconv.Quote(string(rv.Bytes())), nil
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil", nil
		}
		return s.serializeMap(rv)
	case reflect.String:
		return strconv.Quote(rv.String()), nil
	case reflect.Struct:
		return s.serializeStruct(v, rv, rt)
	}

	if basic, ok := s.formatBasic(rv); ok {
		return basic, nil
	}

	return s.jsonFallback(v)
}

// formatBasic formats scalar kinds from their underlying value so that named
// types with a String method still serialize by value.
func (s *textSerializer) formatBasic(rv reflect.Value) (string, bool) {
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(rv.Complex()), true
	default:
		return "", false
	}
}

func (s *textSerializer) serializeList(kind string, rv reflect.Value) (string, error) {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		elem, err := s.serializeValue(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		parts[i] = elem
	}

	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ",")), nil
}

// serializeMap emits key=value pairs ordered by their serialized key.
func (s *textSerializer) serializeMap(rv reflect.Value) (string, error) {
	pairs := make([]string, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k, err := s.serializeValue(iter.Key().Interface())
		if err != nil {
			return "", err
		}
		v, err := s.serializeValue(iter.Value().Interface())
		if err != nil {
			return "", err
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ",")), nil
}

// serializeStruct prefers a struct's own encoding and falls back to its
// exported fields.
func (s *textSerializer) serializeStruct(v any, rv reflect.Value, rt reflect.Type) (string, error) {
	switch m := v.(type) {
	case time.Time:
		return "time:" + m.UTC().Format(time.RFC3339Nano), nil
	case encoding.TextMarshaler:
		text, err := m.MarshalText()
		if err != nil {
			return "", errors.Wrapf(err, "marshal text of %s", rt)
		}
		return "text:" + strconv.Quote(string(text)), nil
	case encoding.BinaryMarshaler:
		data, err := m.MarshalBinary()
		if err != nil {
			return "", errors.Wrapf(err, "marshal binary of %s", rt)
		}
		return "binary:" + strconv.Quote(string(data)), nil
	case fmt.Stringer:
		return "stringer:" + strconv.Quote(m.String()), nil
	}

	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		value, err := s.serializeValue(rv.Field(i).Interface())
		if err != nil {
			return "", errors.Wrapf(err, "field %s", field.Name)
		}
		parts = append(parts, field.Name+":"+value)
	}

	if len(parts) == 0 {
		return "", errors.Newf("binding type %s has no exported fields", rt)
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ",")), nil
}

func (s *textSerializer) jsonFallback(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "marshal binding of type %T", v)
	}
	return "json:" + string(data), nil
}
