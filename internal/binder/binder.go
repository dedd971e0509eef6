// Package binder maps configuration keys onto typed stage properties.
//
// Every key a stage understands is registered in a closed Setters table; a
// key missing from the table is reported as a warning and skipped, while a
// known key whose value does not type-check aborts the whole bind.
package binder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/keyfile"
)

// Target is the stage a bind writes to.
type Target interface {
	Name() string
	SetProperty(key string, value any) error
}

// Source is the read side of a loaded configuration.
type Source interface {
	Keys(group string) ([]string, error)
	GetInt(group, key string) (int, error)
	GetString(group, key string) (string, error)
	GetBool(group, key string) (bool, error)
	GetPath(group, key string) (string, error)
}

var _ Source = (*keyfile.Store)(nil)

// Kind is the value type a Setter reads.
type Kind int

const (
	KindInt Kind = iota
	KindUint
	KindString
	KindPath
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindString:
		return "string"
	case KindPath:
		return "path"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Setter reads one typed value for a config key and names the stage
// property it is assigned to.
type Setter struct {
	Property string
	Kind     Kind
}

// Setters is the closed key → setter table for one config group.
type Setters map[string]Setter

// Property is one resolved assignment.
type Property struct {
	Key      string
	Property string
	Value    any
}

// Warning records a key that was skipped.
type Warning struct {
	Group string
	Key   string
}

func (w Warning) String() string {
	return fmt.Sprintf("unknown key '%s' for group [%s]", w.Key, w.Group)
}

// Result describes a successful bind.
type Result struct {
	Stage      string
	Group      string
	Properties []Property
	Warnings   []Warning
}

// ValidationError is the fatal bind failure for a stage: a known key whose
// value is missing or has the wrong type.
type ValidationError struct {
	Stage string
	Group string
	Key   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("binder: stage %q group [%s]: %v", e.Stage, e.Group, e.Err)
	}
	return fmt.Sprintf("binder: stage %q group [%s] key %q: %v", e.Stage, e.Group, e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrPropertyRejected is wrapped when the target refuses a property value.
var ErrPropertyRejected = errors.New("binder: property rejected by stage")

// Bind resolves every key of group through setters and, only if all known
// keys validate, applies the properties to target in key order.
func Bind(target Target, src Source, group string, setters Setters) (*Result, error) {
	keys, err := src.Keys(group)
	if err != nil {
		return nil, &ValidationError{Stage: target.Name(), Group: group, Err: err}
	}

	res := &Result{Stage: target.Name(), Group: group}

	for _, key := range keys {
		setter, ok := setters[key]
		if !ok {
			w := Warning{Group: group, Key: key}
			res.Warnings = append(res.Warnings, w)
			slog.Warn("binder: "+w.String(), "stage", target.Name())
			continue
		}

		value, err := read(src, group, key, setter.Kind)
		if err != nil {
			return nil, &ValidationError{Stage: target.Name(), Group: group, Key: key, Err: err}
		}

		res.Properties = append(res.Properties, Property{
			Key:      key,
			Property: setter.Property,
			Value:    value,
		})
	}

	for _, p := range res.Properties {
		if err := target.SetProperty(p.Property, p.Value); err != nil {
			return nil, &ValidationError{
				Stage: target.Name(),
				Group: group,
				Key:   p.Key,
				Err:   fmt.Errorf("%w: %s=%v: %v", ErrPropertyRejected, p.Property, p.Value, err),
			}
		}
	}

	slog.Debug("binder: stage configured",
		"stage", target.Name(),
		"group", group,
		"properties", len(res.Properties),
		"warnings", len(res.Warnings),
	)

	return res, nil
}

func read(src Source, group, key string, kind Kind) (any, error) {
	switch kind {
	case KindInt:
		return src.GetInt(group, key)
	case KindUint:
		v, err := src.GetInt(group, key)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("%w: [%s] %s=%d must not be negative", keyfile.ErrTypeMismatch, group, key, v)
		}
		return uint(v), nil
	case KindString:
		return src.GetString(group, key)
	case KindPath:
		return src.GetPath(group, key)
	case KindBool:
		return src.GetBool(group, key)
	default:
		return nil, fmt.Errorf("binder: unsupported setter kind %d", kind)
	}
}
