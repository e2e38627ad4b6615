// Package catalog maps human-readable command names to the wire-level
// (topic, api id, parameters) triples the robot understands.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go2ctl/go2ctl/internal/robot"
)

// ParamKind is the value type a parameter accepts.
type ParamKind int

const (
	KindNumber ParamKind = iota
	KindString
	KindBool
)

func (k ParamKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Param describes one accepted command parameter.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
}

// Entry is a single catalog command.
type Entry struct {
	Name        string
	Topic       string
	APIID       int
	Params      []Param
	Defaults    map[string]any
	Description string
}

// Wire is a command translated into what the link publishes.
type Wire struct {
	Topic     string
	APIID     int
	Parameter map[string]any
}

// Catalog is a concurrency-safe command table. The zero value is empty;
// use Default for the built-in sport commands.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// New creates a catalog holding the given entries in order.
func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.Add(e)
	}
	return c
}

// Default returns a catalog preloaded with the sport command table.
func Default() *Catalog {
	return New(sportEntries...)
}

// Add inserts or replaces an entry. Replacing keeps the original position.
func (c *Catalog) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	if _, exists := c.entries[e.Name]; !exists {
		c.order = append(c.order, e.Name)
	}
	c.entries[e.Name] = e
}

// Lookup returns the entry registered under name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Names returns command names in catalog order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Entries returns all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	return out
}

// Translate validates cmd against the catalog and returns its wire form.
// Unknown names wrap robot.ErrUnknownCommand, schema mismatches wrap
// robot.ErrInvalidParameters.
func (c *Catalog) Translate(cmd robot.Command) (Wire, error) {
	e, ok := c.Lookup(cmd.Name)
	if !ok {
		return Wire{}, errors.Wrapf(robot.ErrUnknownCommand, "%q", cmd.Name)
	}

	params := make(map[string]any, len(e.Params))
	for k, v := range e.Defaults {
		params[k] = v
	}
	for k, v := range cmd.Parameters {
		params[k] = v
	}

	known := make(map[string]Param, len(e.Params))
	for _, p := range e.Params {
		known[p.Name] = p
	}

	for k, v := range params {
		p, ok := known[k]
		if !ok {
			return Wire{}, errors.Wrapf(robot.ErrInvalidParameters, "%s: unexpected parameter %q", e.Name, k)
		}
		normalized, err := normalize(p.Kind, v)
		if err != nil {
			return Wire{}, errors.Wrapf(robot.ErrInvalidParameters, "%s: parameter %q: %v", e.Name, k, err)
		}
		params[k] = normalized
	}
	for _, p := range e.Params {
		if _, ok := params[p.Name]; p.Required && !ok {
			return Wire{}, errors.Wrapf(robot.ErrInvalidParameters, "%s: missing parameter %q", e.Name, p.Name)
		}
	}

	w := Wire{Topic: e.Topic, APIID: e.APIID}
	if len(params) > 0 {
		w.Parameter = params
	}
	return w, nil
}

// normalize converts v to the canonical Go type for kind: float64, string
// or bool.
func normalize(kind ParamKind, v any) (any, error) {
	switch kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindNumber:
		if f, ok := ToFloat(v); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("want %s, got %T", kind, v)
}

// ToFloat converts the numeric types found in decoded JSON and Go literals
// to a finite float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type overrideFile struct {
	Commands []overrideEntry `yaml:"commands"`
}

type overrideEntry struct {
	Name        string          `yaml:"name"`
	Topic       string          `yaml:"topic"`
	APIID       int             `yaml:"api_id"`
	Description string          `yaml:"description"`
	Params      []overrideParam `yaml:"params"`
	Defaults    map[string]any  `yaml:"defaults"`
}

type overrideParam struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Required bool   `yaml:"required"`
}

// LoadOverrides reads a YAML document of the form
//
//	commands:
//	  - name: sit
//	    api_id: 1009
//	    params:
//	      - {name: data, kind: number, required: true}
//
// and adds or replaces the listed entries. Topic defaults to TopicSport.
func (c *Catalog) LoadOverrides(r io.Reader) error {
	var doc overrideFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "failed to parse catalog overrides")
	}

	entries := make([]Entry, 0, len(doc.Commands))
	for i, oc := range doc.Commands {
		name := strings.TrimSpace(oc.Name)
		if name == "" {
			return errors.Errorf("catalog override #%d: missing name", i)
		}
		if oc.APIID <= 0 {
			return errors.Errorf("catalog override %q: api_id must be positive", name)
		}
		e := Entry{
			Name:        name,
			Topic:       oc.Topic,
			APIID:       oc.APIID,
			Description: oc.Description,
			Defaults:    oc.Defaults,
		}
		if e.Topic == "" {
			e.Topic = TopicSport
		}
		for _, op := range oc.Params {
			kind, err := parseKind(op.Kind)
			if err != nil {
				return errors.Wrapf(err, "catalog override %q", name)
			}
			e.Params = append(e.Params, Param{Name: op.Name, Kind: kind, Required: op.Required})
		}
		entries = append(entries, e)
	}

	for _, e := range entries {
		c.Add(e)
	}
	return nil
}

func parseKind(s string) (ParamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "number", "float", "int":
		return KindNumber, nil
	case "string":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return 0, errors.Errorf("unknown parameter kind %q", s)
	}
}

// SortedNames returns command names alphabetically.
func (c *Catalog) SortedNames() []string {
	names := c.Names()
	sort.Strings(names)
	return names
}
