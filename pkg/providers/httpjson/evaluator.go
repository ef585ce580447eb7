package httpjson

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// evaluator caches compiled JMESPath expressions.
type evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func newEvaluator() *evaluator {
	return &evaluator{cache: make(map[string]*jmespath.JMESPath)}
}

func (e *evaluator) evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (e *evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}

func (e *evaluator) slice(expression string, data any) ([]any, error) {
	result, err := e.evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}
	if s, ok := result.([]any); ok {
		return s, nil
	}
	return []any{result}, nil
}

// record reads mapped fields from a single record.
type record struct {
	eval   *evaluator
	data   any
	fields map[string]Field
}

func (r record) raw(name string) (any, error) {
	f, ok := r.fields[name]
	if !ok {
		return nil, nil
	}
	return r.eval.evaluate(f.Expression, r.data)
}

// str returns the field as a string after its normalizer chain; "" when absent.
func (r record) str(name string) (string, error) {
	v, err := r.raw(name)
	if err != nil || v == nil {
		return "", err
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", fmt.Errorf("field %s: cannot convert %T to string", name, v)
	}
	return normalizers.ApplyChain(s, r.fields[name].Normalizers...), nil
}

func (r record) optStr(name string) (*string, error) {
	s, err := r.str(name)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

func (r record) optFloat(name string) (*float64, error) {
	v, err := r.raw(name)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case float64:
		return &t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("field %s: cannot convert %T to number", name, v)
	}
}

func (r record) optInt(name string) (*int, error) {
	f, err := r.optFloat(name)
	if err != nil || f == nil {
		return nil, err
	}
	i := int(*f)
	return &i, nil
}

func (r record) boolean(name string) (bool, error) {
	v, err := r.raw(name)
	if err != nil || v == nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", name, err)
		}
		return b, nil
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("field %s: cannot convert %T to bool", name, v)
	}
}

// optTime accepts RFC 3339 strings, plain dates and unix seconds.
func (r record) optTime(name string) (*time.Time, error) {
	v, err := r.raw(name)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case float64:
		ts := time.Unix(int64(t), 0).UTC()
		return &ts, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if ts, err := time.Parse(layout, t); err == nil {
				ts = ts.UTC()
				return &ts, nil
			}
		}
		return nil, fmt.Errorf("field %s: unrecognised time %q", name, t)
	default:
		return nil, fmt.Errorf("field %s: cannot convert %T to time", name, v)
	}
}
