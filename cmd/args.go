package cmd

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseFields turns key=value arguments into a JSON payload. Numbers and
// booleans keep their type; everything else stays a string.
func parseFields(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[k] = fieldValue(strings.TrimSpace(v))
	}
	return out, nil
}

func fieldValue(v string) any {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// parseFieldsFor is parseFields typed by the JSON fields of entity: a
// string field keeps "2024" as text, a numeric field rejects "lots". Keys the
// entity does not declare fall back to parseFields' guessing.
func parseFieldsFor(entity any, args []string) (map[string]any, error) {
	out, err := parseFields(args)
	if err != nil {
		return nil, err
	}
	kinds := jsonKinds(reflect.TypeOf(entity))
	for _, arg := range args {
		k, v, _ := strings.Cut(arg, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		kind, ok := kinds[k]
		if !ok {
			continue
		}
		switch kind {
		case reflect.String, reflect.Struct:
			out[k] = v
		case reflect.Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%s: expected true or false, got %q", k, v)
			}
			out[k] = b
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: expected a whole number, got %q", k, v)
			}
			out[k] = n
		case reflect.Float64:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: expected a number, got %q", k, v)
			}
			out[k] = n
		}
	}
	return out, nil
}

// jsonKinds maps the JSON names of a struct's fields to their kinds.
func jsonKinds(t reflect.Type) map[string]reflect.Kind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	kinds := make(map[string]reflect.Kind, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		kinds[name] = f.Type.Kind()
	}
	return kinds
}

// stringFields is parseFields for multipart forms, where every value is text.
func stringFields(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
