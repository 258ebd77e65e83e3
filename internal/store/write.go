package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/ir"
)

// LoadDataset (re)creates table name holding ds and records it in the
// catalog. Nested dataset attributes cannot be stored and are rejected.
//
// The table, its rows and the catalog entry are written atomically.
func (s *Store) LoadDataset(ctx context.Context, name, timeAttribute string, ds *ir.Dataset) error {
	if name == "" {
		return fmt.Errorf("load dataset: missing name")
	}
	attrs := ds.Attributes
	for _, a := range attrs {
		if a.Type == ir.TypeDataset {
			return fmt.Errorf("load dataset %q: nested attribute %q cannot be stored", name, a.Name)
		}
	}
	if timeAttribute != "" {
		if a, ok := attrs.Find(timeAttribute); !ok || a.Type != ir.TypeTime {
			return fmt.Errorf("load dataset %q: time attribute %q is not a TIME column", name, timeAttribute)
		}
	}
	attrJSON, err := marshalAttributes(attrs)
	if err != nil {
		return err
	}

	q := dialect.SQLite{}
	table := q.EscapeName(name)
	cols := make([]string, len(attrs))
	names := make([]string, len(attrs))
	marks := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = q.EscapeName(a.Name)
		cols[i] = names[i] + " " + columnType(a.Type)
		marks[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, len(attrs))
	for i, row := range ds.Data {
		for j, a := range attrs {
			v, err := cellValue(row.Get(a.Name))
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, a.Name, err)
			}
			args[j] = v
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	// seq orders the catalog by load order (logical, never wall time).
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO strata_datasets (name, time_attribute, attributes, row_count, seq)
		VALUES (?, ?, ?, ?, COALESCE((SELECT MAX(seq) FROM strata_datasets), 0) + 1)
		ON CONFLICT(name) DO UPDATE SET
			time_attribute = excluded.time_attribute,
			attributes = excluded.attributes,
			row_count = excluded.row_count,
			seq = excluded.seq
	`, name, timeAttribute, attrJSON, len(ds.Data)); err != nil {
		return fmt.Errorf("record dataset %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
