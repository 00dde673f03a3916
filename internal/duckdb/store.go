// Package duckdb exports library contents to DuckDB so genes, alleles and
// anchor positions can be queried with SQL.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// Store manages a DuckDB connection holding exported libraries.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create export directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// SetLogger sets the logger.
func (s *Store) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alleles (
			library VARCHAR,
			taxon_id INTEGER,
			chain VARCHAR,
			gene VARCHAR,
			gene_type VARCHAR,
			allele VARCHAR,
			is_reference BOOLEAN,
			is_functional BOOLEAN,
			parent VARCHAR,
			accession VARCHAR,
			reference_feature VARCHAR,
			mutations VARCHAR,
			sequence VARCHAR,
			PRIMARY KEY (library, taxon_id, allele)
		)`,
		`CREATE TABLE IF NOT EXISTS anchor_points (
			library VARCHAR,
			taxon_id INTEGER,
			allele VARCHAR,
			point VARCHAR,
			position INTEGER,
			PRIMARY KEY (library, taxon_id, allele, point)
		)`,
		`CREATE TABLE IF NOT EXISTS species_names (
			library VARCHAR,
			name VARCHAR,
			taxon_id INTEGER,
			PRIMARY KEY (library, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
