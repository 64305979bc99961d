package profile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a profiles YAML file
type File struct {
	Default  string    `yaml:"default,omitempty"`
	Profiles []Profile `yaml:"profiles"`
}

// IgnoredKeys lists injection keys no regime reads, as profile/scenario.key in file order
func (f File) IgnoredKeys() []string {
	var out []string
	for _, p := range f.Profiles {
		names := make([]string, 0, len(p.Injection))
		for name := range p.Injection {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, k := range p.Injection[name].Ignored {
				out = append(out, p.Name+"/"+name+"."+k)
			}
		}
	}
	return out
}

// Decode reads a profiles document. Unknown fields are an error everywhere except inside
// injection specs, whose unknown keys are collected by IgnoredKeys.
func Decode(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("failed to decode profiles: %w", err)
	}
	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return File{}, err
		}
	}
	return f, nil
}

// LoadFile reads a profiles YAML file and merges it into the registry.
// It returns the ignored injection keys so the caller can report them.
func (r *Registry) LoadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiles file: %w", err)
	}
	f, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := r.Merge(f.Profiles); err != nil {
		return nil, err
	}
	if f.Default != "" {
		if err := r.SetDefault(f.Default); err != nil {
			return nil, err
		}
	}
	return f.IgnoredKeys(), nil
}

// Encode writes profiles as a YAML document
func Encode(w io.Writer, profiles ...Profile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Profiles: profiles}); err != nil {
		return err
	}
	return enc.Close()
}
