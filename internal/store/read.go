package store

import (
	"context"
	"fmt"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/external"
)

// DatasetInfo is one catalog entry.
type DatasetInfo struct {
	Name     string
	RowCount int
	Source   external.SourceDescription
}

// Datasets returns the catalog of loaded datasets in load order.
//
// Returns an empty slice (not nil) if nothing has been loaded.
func (s *Store) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, time_attribute, attributes, row_count
		FROM strata_datasets
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	out := []DatasetInfo{}
	for rows.Next() {
		var info DatasetInfo
		var timeAttr, attrJSON string
		if err := rows.Scan(&info.Name, &timeAttr, &attrJSON, &info.RowCount); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		attrs, err := unmarshalAttributes(attrJSON)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", info.Name, err)
		}
		info.Source = external.SourceDescription{
			Engine:        dialect.EngineSQLite,
			Source:        info.Name,
			TimeAttribute: timeAttr,
			Attributes:    attrs,
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return out, nil
}

// Sources returns an External per loaded dataset, keyed by name.
func (s *Store) Sources(ctx context.Context) (map[string]*external.External, error) {
	infos, err := s.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*external.External, len(infos))
	for _, info := range infos {
		ext, err := external.New(info.Source)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", info.Name, err)
		}
		out[info.Name] = ext
	}
	return out, nil
}
