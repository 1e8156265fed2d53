package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SeedWriter is the writer recorded for keys supplied at submission.
const SeedWriter = "$seed"

// Reader is read access to run context values.
type Reader interface {
	Has(key string) bool
	Decode(key string, dst any) error
}

// Entry is one context value together with the stage that wrote it.
type Entry struct {
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	Writer string          `json:"writer"`
}

// RunContext is the insertion-ordered, write-once variable store of a run.
// Values are held as JSON so a checkpointed context decodes back into the
// same typed values.
type RunContext struct {
	entries []Entry
	index   map[string]int
}

// NewRunContext returns an empty context.
func NewRunContext() *RunContext {
	return &RunContext{index: make(map[string]int)}
}

// Seed stores a submission input. Seeds cannot be overwritten.
func (c *RunContext) Seed(key string, value any) error {
	if _, ok := c.index[key]; ok {
		return fmt.Errorf("seed %q already set", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode seed %q: %w", key, err)
	}
	c.append(Entry{Key: key, Value: raw, Writer: SeedWriter})
	return nil
}

// Has reports whether key is present.
func (c *RunContext) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[key]
	return ok
}

// Decode unmarshals the value stored under key into dst.
func (c *RunContext) Decode(key string, dst any) error {
	raw, ok := c.Raw(key)
	if !ok {
		return fmt.Errorf("context key %q not set", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode context key %q: %w", key, err)
	}
	return nil
}

// Raw returns the stored JSON for key.
func (c *RunContext) Raw(key string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	idx, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.entries[idx].Value, true
}

// Writer returns the stage that wrote key.
func (c *RunContext) Writer(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	idx, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[idx].Writer, true
}

// Keys returns the keys in insertion order.
func (c *RunContext) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, len(c.entries))
	for i, entry := range c.entries {
		keys[i] = entry.Key
	}
	return keys
}

// Entries returns a copy of the stored entries in insertion order.
func (c *RunContext) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len reports the number of stored keys.
func (c *RunContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Merge writes a stage's output fragment. The whole fragment is checked
// before anything is written: every declared key must be present, no
// undeclared key may appear, and a key owned by another writer is never
// replaced. A stage may overwrite its own keys.
func (c *RunContext) Merge(stage string, declared []string, out Outputs) error {
	allowed := make(map[string]struct{}, len(declared))
	for _, key := range declared {
		allowed[key] = struct{}{}
	}
	extra := make([]string, 0)
	for key := range out {
		if _, ok := allowed[key]; !ok {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &ContractError{Stage: stage, Key: extra[0], Reason: "output not declared"}
	}
	encoded := make([]Entry, 0, len(declared))
	for _, key := range declared {
		value, ok := out[key]
		if !ok {
			return &ContractError{Stage: stage, Key: key, Reason: "declared output missing"}
		}
		if writer, exists := c.Writer(key); exists && writer != stage {
			return &ContractError{Stage: stage, Key: key, Reason: fmt.Sprintf("already written by %s", writer)}
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return &ContractError{Stage: stage, Key: key, Reason: fmt.Sprintf("encode output: %v", err)}
		}
		encoded = append(encoded, Entry{Key: key, Value: raw, Writer: stage})
	}
	for _, entry := range encoded {
		if idx, ok := c.index[entry.Key]; ok {
			c.entries[idx] = entry
			continue
		}
		c.append(entry)
	}
	return nil
}

// Clone returns an independent copy.
func (c *RunContext) Clone() *RunContext {
	clone := NewRunContext()
	if c == nil {
		return clone
	}
	for _, entry := range c.entries {
		value := make(json.RawMessage, len(entry.Value))
		copy(value, entry.Value)
		clone.append(Entry{Key: entry.Key, Value: value, Writer: entry.Writer})
	}
	return clone
}

func (c *RunContext) append(entry Entry) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[entry.Key] = len(c.entries)
	c.entries = append(c.entries, entry)
}

// MarshalJSON encodes the context as an ordered list of entries.
func (c *RunContext) MarshalJSON() ([]byte, error) {
	if c == nil || c.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.entries)
}

// UnmarshalJSON restores a context produced by MarshalJSON.
func (c *RunContext) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	c.entries = nil
	c.index = make(map[string]int, len(entries))
	for _, entry := range entries {
		if _, dup := c.index[entry.Key]; dup {
			return fmt.Errorf("duplicate context key %q", entry.Key)
		}
		c.append(entry)
	}
	return nil
}

// View is the restricted context a capability receives.
type View struct {
	stage   string
	ctx     *RunContext
	allowed map[string]struct{}
}

func newView(stage *Stage, ctx *RunContext) View {
	allowed := make(map[string]struct{}, len(stage.InputKeys)+len(stage.OptionalInputKeys))
	for _, key := range stage.InputKeys {
		allowed[key] = struct{}{}
	}
	for _, key := range stage.OptionalInputKeys {
		allowed[key] = struct{}{}
	}
	return View{stage: stage.Name, ctx: ctx, allowed: allowed}
}

// NewView builds a view over ctx limited to keys. It lets capability tests
// run without an executor.
func NewView(stage string, ctx *RunContext, keys ...string) View {
	return newView(&Stage{Name: stage, InputKeys: keys}, ctx)
}

// Has reports whether a declared key is present. Undeclared keys report false.
func (v View) Has(key string) bool {
	if _, ok := v.allowed[key]; !ok {
		return false
	}
	return v.ctx.Has(key)
}

// Decode reads a declared key. Reading an undeclared key is a contract error.
func (v View) Decode(key string, dst any) error {
	if _, ok := v.allowed[key]; !ok {
		return &ContractError{Stage: v.stage, Key: key, Reason: "input not declared"}
	}
	return v.ctx.Decode(key, dst)
}

// Get decodes key from r into a new T.
func Get[T any](r Reader, key string) (T, error) {
	var value T
	err := r.Decode(key, &value)
	return value, err
}

// Lookup decodes key from r when it is present.
func Lookup[T any](r Reader, key string) (T, bool, error) {
	var value T
	if !r.Has(key) {
		return value, false, nil
	}
	if err := r.Decode(key, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}
