package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
)

type yamlFile struct {
	Sources map[string]yamlSource `yaml:"sources"`
}

type yamlSource struct {
	external.SourceDescription `yaml:",inline"`

	// Filter is kept as a node and converted through its JSON form.
	Filter yaml.Node `yaml:"filter,omitempty"`
}

// LoadYAML parses a YAML (or JSON) catalog.
func LoadYAML(data []byte) (*Catalog, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	if len(f.Sources) == 0 {
		return nil, &LoadError{Field: "sources", Message: "no sources defined"}
	}

	c := &Catalog{Sources: make(map[string]external.SourceDescription, len(f.Sources))}
	for name, src := range f.Sources {
		desc := src.SourceDescription
		if !src.Filter.IsZero() {
			filter, err := YAMLExpression(&src.Filter)
			if err != nil {
				return nil, &LoadError{Field: "sources." + name + ".filter", Message: err.Error()}
			}
			desc.Filter = filter
		}
		if err := validate(name, &desc); err != nil {
			return nil, err
		}
		c.Sources[name] = desc
	}
	return c, nil
}

// YAMLExpression decodes an expression written as YAML in its JSON form.
func YAMLExpression(n *yaml.Node) (expr.Expression, error) {
	data, err := yaml.Marshal(n)
	if err != nil {
		return nil, err
	}
	js, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	return expr.FromJSON(js)
}
