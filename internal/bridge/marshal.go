package bridge

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// BuildCallExpression renders a call of function with argument as script
// source.
//
// Strings and numbers are passed as quoted string literals while arrays,
// maps and structs are passed as raw JSON. Scripted counterparts rely on
// this asymmetry, so it must not be normalised. Numbers with a zero
// fractional part render as integers, which makes 4.0 indistinguishable
// from 4. A nil argument, including a typed nil pointer, renders as a call
// with no arguments.
func BuildCallExpression(function string, argument any) (string, error) {
	if argument == nil {
		return function + "()", nil
	}

	switch v := argument.(type) {
	case json.RawMessage:
		parsed, err := ParseArgument(v)
		if err != nil {
			return "", err
		}
		return BuildCallExpression(function, parsed)
	case string:
		lit, err := scriptString(v)
		if err != nil {
			return "", err
		}
		return function + "(" + lit + ")", nil
	case json.Number:
		text, err := numberText(v)
		if err != nil {
			return "", err
		}
		return function + `("` + text + `")`, nil
	}

	rv := reflect.ValueOf(argument)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return function + "()", nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		lit, err := scriptString(rv.String())
		if err != nil {
			return "", err
		}
		return function + "(" + lit + ")", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return function + `("` + strconv.FormatInt(rv.Int(), 10) + `")`, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return function + `("` + strconv.FormatUint(rv.Uint(), 10) + `")`, nil
	case reflect.Float32:
		// Widen through the shortest decimal form so 8.32743 stays 8.32743.
		f, err := strconv.ParseFloat(strconv.FormatFloat(rv.Float(), 'g', -1, 32), 64)
		if err != nil {
			return "", err
		}
		text, err := floatText(f)
		if err != nil {
			return "", err
		}
		return function + `("` + text + `")`, nil
	case reflect.Float64:
		text, err := floatText(rv.Float())
		if err != nil {
			return "", err
		}
		return function + `("` + text + `")`, nil
	}

	if err := checkJSONSafe(rv, make(map[uintptr]struct{})); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(argument); err != nil {
		return "", err
	}
	return function + "(" + strings.TrimSuffix(buf.String(), "\n") + ")", nil
}

// ParseArgument decodes a JSON document into an Invoke argument. Numbers
// are kept as json.Number so integers survive unchanged. An empty document
// means no argument.
func ParseArgument(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding argument: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decoding argument: trailing data")
	}
	return v, nil
}

// scriptString quotes s as a script string literal. JSON string syntax is a
// subset of it, and the encoder also escapes U+2028 and U+2029.
func scriptString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func floatText(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported number %v", f)
	}
	if math.Mod(f, 1) != 0 {
		return strconv.FormatFloat(f, 'f', 9, 64), nil
	}
	return strconv.FormatFloat(f, 'f', 0, 64), nil
}

func numberText(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid number %q", n.String())
	}
	return floatText(f)
}

// checkJSONSafe walks v and rejects anything without a faithful JSON
// representation. seen holds the containers on the current path.
func checkJSONSafe(v reflect.Value, seen map[uintptr]struct{}) error {
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return nil
	case reflect.Float32, reflect.Float64:
		_, err := floatText(v.Float())
		return err
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkJSONSafe(v.Elem(), seen)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return visit(v.Pointer(), seen, func() error {
			return checkJSONSafe(v.Elem(), seen)
		})
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", v.Type().Key())
		}
		return visit(v.Pointer(), seen, func() error {
			iter := v.MapRange()
			for iter.Next() {
				if err := checkJSONSafe(iter.Value(), seen); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return visit(v.Pointer(), seen, func() error {
			return checkElements(v, seen)
		})
	case reflect.Array:
		return checkElements(v, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if err := checkJSONSafe(v.Field(i), seen); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
}

func checkElements(v reflect.Value, seen map[uintptr]struct{}) error {
	for i := 0; i < v.Len(); i++ {
		if err := checkJSONSafe(v.Index(i), seen); err != nil {
			return err
		}
	}
	return nil
}

func visit(ptr uintptr, seen map[uintptr]struct{}, fn func() error) error {
	if _, ok := seen[ptr]; ok {
		return errors.New("cyclic value")
	}
	seen[ptr] = struct{}{}
	defer delete(seen, ptr)
	return fn()
}
