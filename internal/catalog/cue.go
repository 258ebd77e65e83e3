package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
)

// LoadCUE loads a catalog from a CUE file or a directory holding one CUE
// package. CUE lets catalogs share attribute lists and constrain fields:
//
//	#Diamond: [{name: "time", type: "TIME"}, {name: "cut", type: "STRING"}]
//	sources: diamonds: {engine: "sqlite", attributes: #Diamond}
func LoadCUE(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{File: path, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}
	return CompileCUE(value)
}

// CompileCUE reads the "sources" struct of a CUE value.
//
//	v := cuecontext.New().CompileString(`sources: diamonds: {engine: "sqlite"}`)
//	c, err := CompileCUE(v)
func CompileCUE(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}
	sources := v.LookupPath(cue.ParsePath("sources"))
	if !sources.Exists() {
		return nil, &LoadError{Field: "sources", Message: "no sources defined", Pos: v.Pos()}
	}
	iter, err := sources.Fields()
	if err != nil {
		return nil, formatCUEError("sources", err)
	}

	c := &Catalog{Sources: map[string]external.SourceDescription{}}
	for iter.Next() {
		name := iter.Label()
		field := "sources." + name
		sv := iter.Value()

		var desc external.SourceDescription
		if err := sv.Decode(&desc); err != nil {
			return nil, formatCUEError(field, err)
		}
		if fv := sv.LookupPath(cue.ParsePath("filter")); fv.Exists() {
			js, err := fv.MarshalJSON()
			if err != nil {
				return nil, formatCUEError(field+".filter", err)
			}
			filter, err := expr.FromJSON(js)
			if err != nil {
				return nil, &LoadError{Field: field + ".filter", Message: err.Error(), Pos: fv.Pos()}
			}
			desc.Filter = filter
		}
		if err := validate(name, &desc); err != nil {
			var le *LoadError
			if asLoadError(err, &le) && !le.Pos.IsValid() {
				le.Pos = sv.Pos()
			}
			return nil, err
		}
		c.Sources[name] = desc
	}
	if len(c.Sources) == 0 {
		return nil, &LoadError{Field: "sources", Message: "no sources defined", Pos: sources.Pos()}
	}
	return c, nil
}
