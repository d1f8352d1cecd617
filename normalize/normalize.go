// Package normalize reshapes upstream JSON into the stable records the
// dashboard consumes. Every adapter is pure, accepts either a bare payload or
// a {"data": ...} envelope, and is a fixed point on its own output.
package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrShape         = errors.New("unexpected upstream payload shape")
	ErrInvalidRecord = errors.New("upstream record failed validation")
)

// Result holds the normalized records of a list payload. Dropped counts the
// entries rejected by the resource predicate.
type Result[T any] struct {
	Items   []T
	Dropped int
}

// Shaper is the type-erased form of an adapter used by the gateway routes.
type Shaper interface {
	Name() string
	List(raw []byte) (items any, dropped int, err error)
	One(raw []byte) (any, error)
}

type adapter[T any] struct {
	name  string
	build func(record, int) (T, bool)
	sort  func([]T)
}

func (a adapter[T]) Name() string { return a.name }

func (a adapter[T]) List(raw []byte) (any, int, error) {
	res, err := a.normalize(raw)
	if err != nil {
		return nil, 0, err
	}
	return res.Items, res.Dropped, nil
}

func (a adapter[T]) One(raw []byte) (any, error) {
	return a.record(raw)
}

func (a adapter[T]) normalize(raw []byte) (Result[T], error) {
	records, err := decodeList(raw)
	if err != nil {
		return Result[T]{Items: []T{}}, err
	}
	res := Result[T]{Items: make([]T, 0, len(records))}
	for i, rec := range records {
		if rec == nil {
			res.Dropped++
			continue
		}
		item, ok := a.build(rec, i)
		if !ok {
			res.Dropped++
			continue
		}
		res.Items = append(res.Items, item)
	}
	if a.sort != nil {
		a.sort(res.Items)
	}
	return res, nil
}

func (a adapter[T]) record(raw []byte) (T, error) {
	var zero T
	rec, err := decodeOne(raw)
	if err != nil {
		return zero, err
	}
	item, ok := a.build(rec, 0)
	if !ok {
		return zero, ErrInvalidRecord
	}
	return item, nil
}

type record map[string]any

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode upstream json")
	}
	return v, nil
}

// decodeList accepts [...] or {"data": [...]}. Array entries that are not
// objects come back as nil records.
func decodeList(raw []byte) ([]record, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok {
		data, present := obj["data"]
		if !present {
			return nil, ErrShape
		}
		if data == nil {
			return nil, nil
		}
		v = data
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, ErrShape
	}
	out := make([]record, len(arr))
	for i, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out[i] = record(obj)
		}
	}
	return out, nil
}

// decodeOne accepts {...} or {"data": {...}}.
func decodeOne(raw []byte) (record, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrShape
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return record(inner), nil
	}
	return record(obj), nil
}

// str returns the first non-empty scalar under keys, trimmed.
func (r record) str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func (r record) int(keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
			if f, err := v.Float64(); err == nil {
				return int(f), true
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func (r record) bool(key string) (bool, bool) {
	switch v := r[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return false, false
}

func (r record) obj(key string) record {
	if m, ok := r[key].(map[string]any); ok {
		return record(m)
	}
	return nil
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// activeStatus folds the upstream status vocabulary onto active/inactive.
func activeStatus(r record) string {
	switch strings.ToLower(r.str("status")) {
	case "inactive", "disabled", "suspended", "false":
		return StatusInactive
	case "active", "enabled", "true":
		return StatusActive
	}
	for _, k := range []string{"isActive", "active", "enabled"} {
		if v, ok := r.bool(k); ok && !v {
			return StatusInactive
		}
	}
	return StatusActive
}
