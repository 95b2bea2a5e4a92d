package frame

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var builtinYAML []byte

type formatFile struct {
	Formats []*Format `yaml:"formats"`
}

// Registry holds named formats. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	formats map[string]*Format
}

func NewRegistry() *Registry {
	return &Registry{formats: make(map[string]*Format)}
}

// Builtin returns a new registry populated with the embedded formats.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	if err := r.Parse(builtinYAML); err != nil {
		return nil, fmt.Errorf("builtin formats: %w", err)
	}
	return r, nil
}

// Add validates f and registers it, replacing any format of the same name.
func (r *Registry) Add(f *Format) error {
	if f == nil {
		return fmt.Errorf("%w: nil format", ErrInvalidFormat)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.formats[f.Name] = f
	r.mu.Unlock()
	return nil
}

// Parse reads a YAML document with a top-level "formats" list. Nothing is
// registered unless every format in the document validates.
func (r *Registry) Parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc formatFile
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	seen := make(map[string]struct{}, len(doc.Formats))
	for _, f := range doc.Formats {
		if f == nil {
			return fmt.Errorf("%w: empty entry", ErrInvalidFormat)
		}
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %s defined twice", ErrInvalidFormat, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range doc.Formats {
		r.formats[f.Name] = f
	}
	return nil
}

// Merge copies every format of other into r. Formats in other were validated
// when they were added there.
func (r *Registry) Merge(other *Registry) {
	if other == nil || other == r {
		return
	}
	fs := other.Formats()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range fs {
		r.formats[f.Name] = f
	}
}

// LoadFile merges the formats defined in a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := r.Parse(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Lookup returns the named format.
func (r *Registry) Lookup(name string) (*Format, error) {
	r.mu.RLock()
	f, ok := r.formats[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.formats))
	for n := range r.formats {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Formats returns the registered formats sorted by name.
func (r *Registry) Formats() []*Format {
	names := r.Names()
	out := make([]*Format, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if f, ok := r.formats[n]; ok {
			out = append(out, f)
		}
	}
	return out
}
