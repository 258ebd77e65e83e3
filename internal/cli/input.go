package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/catalog"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/loader"
)

// readExpression loads an expression in its interchange form from a JSON
// or YAML file.
func readExpression(path string) (expr.Expression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var n yaml.Node
		if err := yaml.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return catalog.YAMLExpression(&n)
	}
	return expr.FromJSON(data)
}

// loadCatalog loads and merges the catalogs at paths.
func loadCatalog(paths []string) (*catalog.Catalog, error) {
	out := &catalog.Catalog{Sources: map[string]external.SourceDescription{}}
	for _, p := range paths {
		c, err := catalog.Load(p)
		if err != nil {
			return nil, err
		}
		if err := out.Merge(c, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dataFile is one --data flag: a dataset name and the file holding it.
type dataFile struct {
	Name string
	Path string
}

// parseDataFlags parses name=path values. A bare path is named after its
// file.
func parseDataFlags(values []string) ([]dataFile, error) {
	out := make([]dataFile, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		if !ok {
			name, path = loader.Name(v), v
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid --data %q: want name=path", v)
		}
		if seen[name] {
			return nil, fmt.Errorf("dataset %q given twice", name)
		}
		seen[name] = true
		out = append(out, dataFile{Name: name, Path: path})
	}
	return out, nil
}
