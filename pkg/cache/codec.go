package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnregisteredType is returned when a codec meets a value type it cannot restore.
var ErrUnregisteredType = errors.New("cache: type not registered with codec")

// Codec serializes cached values for byte-oriented backends. Values round-trip with
// their concrete Go type, which must be registered in the codec's TypeRegistry.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// TypeRegistry maps type names to the Go types a codec can restore.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry creates a registry holding prototypes' types.
func NewTypeRegistry(prototypes ...any) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]reflect.Type)}
	r.Register(prototypes...)
	return r
}

// Register records the concrete types of prototypes. Pointer and value forms are
// distinct registrations.
func (r *TypeRegistry) Register(prototypes ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range prototypes {
		t := reflect.TypeOf(p)
		r.types[registryName(t)] = t
	}
}

func (r *TypeRegistry) lookup(name string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, name)
	}
	return t, nil
}

func (r *TypeRegistry) nameOf(v any) (string, error) {
	name := registryName(reflect.TypeOf(v))
	if _, err := r.lookup(name); err != nil {
		return "", err
	}
	return name, nil
}

func registryName(t reflect.Type) string {
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return prefix + t.String()
	}
	return prefix + t.PkgPath() + "." + t.Name()
}

// decode allocates a value of the registered type and fills it via unmarshal.
func (r *TypeRegistry) decode(name string, unmarshal func(target any) error) (any, error) {
	t, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	target := reflect.New(t)
	if err := unmarshal(target.Interface()); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}

type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JSONCodec encodes values as JSON inside a typed envelope.
type JSONCodec struct {
	types *TypeRegistry
}

// NewJSONCodec creates a JSON codec restoring types from registry.
func NewJSONCodec(registry *TypeRegistry) *JSONCodec {
	return &JSONCodec{types: registry}
}

// Name implements Codec.
func (c *JSONCodec) Name() string { return "json" }

// Marshal implements Codec.
func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return json.Marshal(jsonEnvelope{Data: json.RawMessage("null")})
	}
	name, err := c.types.nameOf(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return json.Marshal(jsonEnvelope{Type: name, Data: data})
}

// Unmarshal implements Codec.
func (c *JSONCodec) Unmarshal(data []byte) (any, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, nil
	}
	return c.types.decode(env.Type, func(target any) error {
		return json.Unmarshal(env.Data, target)
	})
}

type cborEnvelope struct {
	Type string          `cbor:"1,keyasint"`
	Data cbor.RawMessage `cbor:"2,keyasint"`
}

// CBORCodec encodes values as CBOR inside a typed envelope. It is more compact than
// JSON and keeps integer and byte-string fidelity.
type CBORCodec struct {
	types *TypeRegistry
	enc   cbor.EncMode
}

// NewCBORCodec creates a CBOR codec restoring types from registry. Map keys are
// sorted canonically so equal values encode identically. Times keep nanosecond
// precision.
func NewCBORCodec(registry *TypeRegistry) (*CBORCodec, error) {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &CBORCodec{types: registry, enc: enc}, nil
}

// Name implements Codec.
func (c *CBORCodec) Name() string { return "cbor" }

// Marshal implements Codec.
func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return c.enc.Marshal(cborEnvelope{Data: cbor.RawMessage{0xf6}})
	}
	name, err := c.types.nameOf(v)
	if err != nil {
		return nil, err
	}
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return c.enc.Marshal(cborEnvelope{Type: name, Data: data})
}

// Unmarshal implements Codec.
func (c *CBORCodec) Unmarshal(data []byte) (any, error) {
	var env cborEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, nil
	}
	return c.types.decode(env.Type, func(target any) error {
		return cbor.Unmarshal(env.Data, target)
	})
}

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string, registry *TypeRegistry) (Codec, error) {
	switch name {
	case "", "json":
		return NewJSONCodec(registry), nil
	case "cbor":
		c, err := NewCBORCodec(registry)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache codec %q", name)
}
