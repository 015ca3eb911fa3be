package mutation

import (
	"encoding/json"
	"fmt"
)

// mergeByID shallow-merges patch into the element whose id matches, using
// JSON field names. Elements that do not match are untouched; no match at all
// is not an error.
func mergeByID[T any](items []T, id int64, idOf func(T) int64, patch map[string]any) error {
	for i := range items {
		if idOf(items[i]) != id {
			continue
		}
		merged, err := merge(items[i], patch)
		if err != nil {
			return err
		}
		items[i] = merged
	}
	return nil
}

func merge[T any](item T, patch map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(item)
	if err != nil {
		return zero, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("encoding patch: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("applying patch: %w", err)
	}
	return out, nil
}
