// Package sqlite - schema compatibility probing
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaIncompatible is returned when the database schema is incompatible with the current version
var ErrSchemaIncompatible = errors.New("database schema is incompatible")

// expectedSchema defines all expected tables and their required columns
// This is used to verify migrations completed successfully
var expectedSchema = map[string][]string{
	"issues": {
		"id", "title", "description", "issue_type", "status", "priority", "assignee",
		"created_at", "updated_at", "closed_at", "estimate_minutes", "design_notes",
		"acceptance_criteria", "external_ref", "synced_at", "spec_id", "metadata", "working_notes",
	},
	"comments":       {"id", "issue_id", "author", "content", "created_at"},
	"labels":         {"issue_id", "label"},
	"dependencies":   {"issue_id", "depends_on_id", "type", "created_at"},
	"issues_fts":     {"id", "title", "description", "notes"},
	"conflicts":      {"id", "issue_id", "local_snapshot", "remote_snapshot", "remote_hash", "status", "created_at"},
	"issued_ids":     {"id", "issued_at"},
	"child_counters": {"parent_id", "last_child"},
	"config":         {"key", "value"},
	"metadata":       {"key", "value"},
	"schema_version": {"version", "description", "applied_at"},
}

// SchemaProbeResult contains the results of a schema compatibility check
type SchemaProbeResult struct {
	Compatible     bool
	MissingTables  []string
	MissingColumns map[string][]string // table -> missing columns
	ErrorMessage   string
}

// probeSchema verifies all expected tables and columns exist
func probeSchema(ctx context.Context, db *sql.DB) SchemaProbeResult {
	result := SchemaProbeResult{
		Compatible:     true,
		MissingColumns: make(map[string][]string),
	}

	tables := make([]string, 0, len(expectedSchema))
	for table := range expectedSchema {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		expectedCols := expectedSchema[table]
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", strings.Join(expectedCols, ", "), table)
		_, err := db.ExecContext(ctx, query)
		if err == nil {
			continue
		}

		errMsg := err.Error()
		if strings.Contains(errMsg, "no such table") {
			result.Compatible = false
			result.MissingTables = append(result.MissingTables, table)
			continue
		}
		if strings.Contains(errMsg, "no such column") {
			result.Compatible = false
			if missing := findMissingColumns(ctx, db, table, expectedCols); len(missing) > 0 {
				result.MissingColumns[table] = missing
			}
		}
	}

	if !result.Compatible {
		var parts []string
		if len(result.MissingTables) > 0 {
			parts = append(parts, fmt.Sprintf("missing tables: %s", strings.Join(result.MissingTables, ", ")))
		}
		for _, table := range tables {
			if cols, ok := result.MissingColumns[table]; ok {
				parts = append(parts, fmt.Sprintf("missing columns in %s: %s", table, strings.Join(cols, ", ")))
			}
		}
		result.ErrorMessage = strings.Join(parts, "; ")
	}

	return result
}

// findMissingColumns determines which columns are missing from a table
func findMissingColumns(ctx context.Context, db *sql.DB, table string, expectedCols []string) []string {
	var missing []string
	for _, col := range expectedCols {
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", col, table)
		if _, err := db.ExecContext(ctx, query); err != nil && strings.Contains(err.Error(), "no such column") {
			missing = append(missing, col)
		}
	}
	return missing
}

// verifySchemaCompatibility runs schema probe and returns detailed error on failure
func verifySchemaCompatibility(ctx context.Context, db *sql.DB) error {
	result := probeSchema(ctx, db)
	if !result.Compatible {
		return fmt.Errorf("%w: %s", ErrSchemaIncompatible, result.ErrorMessage)
	}
	return nil
}
