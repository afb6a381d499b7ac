// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a SQLite ledger of conversions. Batch runs consult
// it to skip inputs whose content has not changed since the last
// successful conversion.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// DefaultLimit bounds List when no limit is given.
const DefaultLimit = 50

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id TEXT PRIMARY KEY,
			input_path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			output_path TEXT,
			status TEXT NOT NULL,
			pages INTEGER,
			images INTEGER,
			warnings INTEGER,
			model TEXT,
			error TEXT,
			duration_ms INTEGER,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_input ON conversions(input_path, content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// HashContent returns the hex SHA-256 used to detect unchanged inputs.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record inserts one conversion. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, rec types.ConversionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("recording conversion: missing id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions
			(id, input_path, content_hash, output_path, status, pages, images, warnings, model, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InputPath, rec.ContentHash, rec.OutputPath, string(rec.Status),
		rec.Pages, rec.Images, rec.Warnings, rec.Model, rec.Error,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording conversion %s: %w", rec.ID, err)
	}
	return nil
}

// LastSuccess returns the most recent successful conversion of inputPath
// with the given content hash.
func (s *Store) LastSuccess(ctx context.Context, inputPath, contentHash string) (types.ConversionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM conversions
		WHERE input_path = ? AND content_hash = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		inputPath, contentHash, string(types.ConversionDone),
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return types.ConversionRecord{}, false, nil
	}
	if err != nil {
		return types.ConversionRecord{}, false, fmt.Errorf("looking up %s: %w", inputPath, err)
	}
	return rec, true, nil
}

// List returns the most recent conversions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]types.ConversionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM conversions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversions: %w", err)
	}
	defer rows.Close()

	var out []types.ConversionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversion: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const exportLimit = 100000

// ExportYAML writes every conversion to w as a YAML list.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	recs, err := s.List(ctx, exportLimit)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes every conversion to w as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	recs, err := s.List(ctx, exportLimit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []types.ConversionRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

const columns = `id, input_path, content_hash, output_path, status, pages, images, warnings, model, error, duration_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (types.ConversionRecord, error) {
	var (
		rec                       types.ConversionRecord
		outputPath, model, errMsg sql.NullString
		status, createdAt         string
		durationMS                int64
	)
	err := sc.Scan(&rec.ID, &rec.InputPath, &rec.ContentHash, &outputPath, &status,
		&rec.Pages, &rec.Images, &rec.Warnings, &model, &errMsg, &durationMS, &createdAt)
	if err != nil {
		return types.ConversionRecord{}, err
	}
	rec.OutputPath = outputPath.String
	rec.Model = model.String
	rec.Error = errMsg.String
	rec.Status = types.ConversionStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}
