// Package ocppconfig implements a typed, persistent, observable
// configuration registry: a tuple of (key, typed value, read-only?,
// reboot-required?, persistent?, write-count) backed by a single
// checkpoint file through the fsadapter.FS collaborator.
package ocppconfig

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// Kind is the typed value carried by an entry.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
)

// Validator rejects a candidate value before it is committed.
type Validator func(value string) error

// Observer is notified after a key's value has changed.
type Observer func(key, value string)

type entry struct {
	Key            string `json:"key"`
	Kind           Kind   `json:"kind"`
	Value          string `json:"value"`
	ReadOnly       bool   `json:"readOnly"`
	RebootRequired bool   `json:"rebootRequired"`
	Persistent     bool   `json:"persistent"`
	WriteCount     int    `json:"writeCount"`

	validator Validator
	observers []Observer
}

// Registry is the single owner of every configuration key; every mutator
// runs through Set so registered observers always see the change.
type Registry struct {
	mu      sync.Mutex
	fs      fsadapter.FS
	path    string
	entries map[string]*entry
	order   []string

	rebootFlagged bool
}

// New creates a Registry backed by path on fs. Define keys first, then
// call Load: Load only restores values of keys that are already defined.
func New(fs fsadapter.FS, path string) *Registry {
	return &Registry{
		fs:      fs,
		path:    path,
		entries: make(map[string]*entry),
	}
}

type wireEntry struct {
	Key        string `json:"key"`
	Kind       Kind   `json:"kind"`
	Value      string `json:"value"`
	WriteCount int    `json:"writeCount"`
}

// Load restores persisted values over any already-defined defaults.
// Missing or corrupt files leave the registry at its defaults.
func (r *Registry) Load() error {
	data, err := fsadapter.ReadAll(r.fs, r.path)
	if err != nil {
		return nil
	}
	var stored []wireEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("ocppconfig: corrupt checkpoint: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range stored {
		if e, ok := r.entries[w.Key]; ok {
			e.Value = w.Value
			e.WriteCount = w.WriteCount
		}
	}
	return nil
}

// save writes every persistent entry to the checkpoint file. Caller
// must hold r.mu.
func (r *Registry) save() error {
	var out []wireEntry
	for _, key := range r.order {
		e := r.entries[key]
		if !e.Persistent {
			continue
		}
		out = append(out, wireEntry{Key: e.Key, Kind: e.Kind, Value: e.Value, WriteCount: e.WriteCount})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return fsadapter.WriteAll(r.fs, r.path, data)
}

type defineOpts struct {
	readOnly       bool
	rebootRequired bool
	persistent     bool
	validator      Validator
}

// Option configures a defined key.
type Option func(*defineOpts)

// ReadOnly marks the key as CS-immutable.
func ReadOnly() Option { return func(o *defineOpts) { o.readOnly = true } }

// RebootRequired marks the key as only taking effect after a reset.
func RebootRequired() Option { return func(o *defineOpts) { o.rebootRequired = true } }

// Persistent marks the key for checkpointing across reboots.
func Persistent() Option { return func(o *defineOpts) { o.persistent = true } }

// WithValidator attaches a validator invoked before every Set.
func WithValidator(v Validator) Option { return func(o *defineOpts) { o.validator = v } }

func (r *Registry) define(key string, kind Kind, value string, opts []Option) {
	o := &defineOpts{}
	for _, apply := range opts {
		apply(o)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; !exists {
		r.order = append(r.order, key)
	}
	r.entries[key] = &entry{
		Key:            key,
		Kind:           kind,
		Value:          value,
		ReadOnly:       o.readOnly,
		RebootRequired: o.rebootRequired,
		Persistent:     o.persistent,
		validator:      o.validator,
	}
}

// DefineInt registers an integer-typed key with its default.
func (r *Registry) DefineInt(key string, def int, opts ...Option) {
	r.define(key, KindInt, strconv.Itoa(def), opts)
}

// DefineFloat registers a float-typed key with its default.
func (r *Registry) DefineFloat(key string, def float64, opts ...Option) {
	r.define(key, KindFloat, strconv.FormatFloat(def, 'f', -1, 64), opts)
}

// DefineBool registers a bool-typed key with its default.
func (r *Registry) DefineBool(key string, def bool, opts ...Option) {
	r.define(key, KindBool, strconv.FormatBool(def), opts)
}

// DefineString registers a string-typed key with its default.
func (r *Registry) DefineString(key string, def string, opts ...Option) {
	r.define(key, KindString, def, opts)
}

// Observe registers fn to be called after key changes. Silently ignored
// for an undefined key.
func (r *Registry) Observe(key string, fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.observers = append(e.observers, fn)
	}
}

// GetString returns the raw string form of key.
func (r *Registry) GetString(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return "", false
	}
	return e.Value, true
}

// GetInt returns key coerced to int.
func (r *Registry) GetInt(key string) (int, bool) {
	v, ok := r.GetString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// GetFloat returns key coerced to float64.
func (r *Registry) GetFloat(key string) (float64, bool) {
	v, ok := r.GetString(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

// GetBool returns key coerced to bool.
func (r *Registry) GetBool(key string) (bool, bool) {
	v, ok := r.GetString(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

// recognize parses raw as the key's declared kind (integer, float or
// bool; any other kind keeps raw as a string) and returns the normalised
// value, or an error when raw does not parse as that kind.
func recognize(raw string, kind Kind) (string, error) {
	switch kind {
	case KindInt:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return "", fmt.Errorf("ocppconfig: %q is not an integer", raw)
		}
		return raw, nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("ocppconfig: %q is not a number", raw)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", fmt.Errorf("ocppconfig: %q is not a bool", raw)
		}
		return strconv.FormatBool(b), nil
	default:
		return raw, nil
	}
}

// Set applies a ChangeConfiguration.req value, returning the OCPP status
// to reply with.
func (r *Registry) Set(key, rawValue string) v16.ConfigurationStatus {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return v16.ConfigurationStatusNotSupported
	}
	if e.ReadOnly {
		r.mu.Unlock()
		return v16.ConfigurationStatusRejected
	}

	coerced, err := recognize(rawValue, e.Kind)
	if err != nil {
		r.mu.Unlock()
		return v16.ConfigurationStatusRejected
	}
	if e.validator != nil {
		if err := e.validator(coerced); err != nil {
			r.mu.Unlock()
			return v16.ConfigurationStatusRejected
		}
	}

	e.Value = coerced
	e.WriteCount++
	observers := append([]Observer(nil), e.observers...)
	needsSave := e.Persistent
	rebootRequired := e.RebootRequired
	r.mu.Unlock()

	for _, obs := range observers {
		obs(key, coerced)
	}
	if needsSave {
		r.mu.Lock()
		_ = r.save()
		r.mu.Unlock()
	}
	if rebootRequired {
		return v16.ConfigurationStatusRebootRequired
	}
	return v16.ConfigurationStatusAccepted
}

// Describe returns the GetConfiguration.conf projection for the
// requested keys (or all keys when requested is empty), plus the subset
// of requested keys that are unknown.
func (r *Registry) Describe(requested []string) (found []v16.KeyValue, unknown []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := requested
	if len(keys) == 0 {
		keys = append([]string(nil), r.order...)
		sort.Strings(keys)
	}
	for _, k := range keys {
		e, ok := r.entries[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		found = append(found, v16.KeyValue{Key: e.Key, Readonly: e.ReadOnly, Value: e.Value})
	}
	return found, unknown
}
