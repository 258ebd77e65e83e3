// Package catalog loads source descriptions: which remote relations an
// expression may reference, on which engine, with which schema.
//
// Catalogs are written in YAML or CUE. Both forms hold a "sources" map
// keyed by the name expressions use to reference the source:
//
//	sources:
//	  diamonds:
//	    engine: sqlite
//	    source: diamonds
//	    timeAttribute: time
//	    attributes:
//	      - {name: time, type: TIME}
//	      - {name: cut, type: STRING}
//	    filter: {op: literal, type: BOOLEAN, value: true}
//
// A filter is an expression in its JSON form.
package catalog

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// Catalog maps source names to their descriptions.
type Catalog struct {
	Sources map[string]external.SourceDescription
}

// Names returns the source names in sorted order.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.Sources))
}

// Externals creates a raw External per source.
func (c *Catalog) Externals() (map[string]*external.External, error) {
	out := make(map[string]*external.External, len(c.Sources))
	for _, name := range c.Names() {
		ext, err := external.New(c.Sources[name])
		if err != nil {
			return nil, &LoadError{Field: "sources." + name, Message: err.Error()}
		}
		out[name] = ext
	}
	return out, nil
}

// Merge adds other's sources, rejecting duplicate names.
func (c *Catalog) Merge(other *Catalog, origin string) error {
	for name, desc := range other.Sources {
		if _, dup := c.Sources[name]; dup {
			return &LoadError{File: origin, Field: "sources." + name, Message: "source defined twice"}
		}
		c.Sources[name] = desc
	}
	return nil
}

// Load reads a catalog from path: a .yaml, .yml, .json or .cue file, or a
// directory. A directory holding .cue files is loaded as one CUE package;
// otherwise every YAML and JSON file in it is loaded and merged.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var cueFiles, yamlFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".cue":
			cueFiles = append(cueFiles, e.Name())
		case ".yaml", ".yml", ".json":
			yamlFiles = append(yamlFiles, filepath.Join(path, e.Name()))
		}
	}
	if len(cueFiles) > 0 {
		return LoadCUE(path)
	}
	if len(yamlFiles) == 0 {
		return nil, &LoadError{File: path, Message: "no catalog files found"}
	}

	out := &Catalog{Sources: map[string]external.SourceDescription{}}
	for _, f := range yamlFiles {
		c, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		if err := out.Merge(c, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadFile(path string) (*Catalog, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return LoadCUE(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c, err := LoadYAML(data)
	if err != nil {
		var le *LoadError
		if ok := asLoadError(err, &le); ok && le.File == "" {
			le.File = path
			return nil, le
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// validate checks one description and normalises its attribute types.
func validate(name string, desc *external.SourceDescription) error {
	field := "sources." + name
	if desc.Source == "" {
		desc.Source = name
	}
	for i := range desc.Attributes {
		a := &desc.Attributes[i]
		if a.Name == "" {
			return &LoadError{Field: fmt.Sprintf("%s.attributes[%d]", field, i), Message: "attribute without a name"}
		}
		t, err := ir.ParseType(string(a.Type))
		if err != nil {
			return &LoadError{Field: fmt.Sprintf("%s.attributes.%s", field, a.Name), Message: err.Error()}
		}
		a.Type = t
	}
	if err := desc.Validate(); err != nil {
		return &LoadError{Field: field, Message: err.Error()}
	}
	return nil
}
