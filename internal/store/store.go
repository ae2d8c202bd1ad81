package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"

	"github.com/amaumene/streamarr/internal/models"
)

var (
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store is closed")
	// ErrReadOnly is returned by mutations on a read-only store
	ErrReadOnly = errors.New("store is read-only")
)

// Options configures a store
type Options struct {
	Schema   Schema
	Codec    Codec // nil selects zstd for primary and LZMA for external stores
	ReadOnly bool
}

// Row is one decoded table row
type Row struct {
	Time     int64
	Settings string
	IDs      models.IDs
	Season   *int
	Part     json.RawMessage // nil when absent
	Data     json.RawMessage // nil when absent or undecodable
}

// Replacement deletes the rows matched by Delete and inserts Row, atomically
type Replacement struct {
	Delete Query
	Row    Row
}

// Store is a table-per-kind SQLite store with compressed rows.
// Mutations are serialized, reads run concurrently.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	opts   Options
	codec  Codec
	closed bool
	logger *logrus.Logger
}

// Open opens or creates the store at path
func Open(path string, opts Options, logger *logrus.Logger) (*Store, error) {
	codec := opts.Codec
	if codec == nil {
		var err error
		if codec, err = defaultCodec(opts.Schema); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, path: path, opts: opts, codec: codec, logger: logger}

	if !opts.ReadOnly {
		// Enable WAL mode for concurrent readers
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return s, nil
}

func (s *Store) migrate() error {
	for _, kind := range models.Kinds {
		for _, statement := range schemaStatements(kind, s.opts.Schema) {
			if _, err := s.db.Exec(statement); err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
		}
	}
	return nil
}

// Path returns the file the store was opened from
func (s *Store) Path() string {
	return s.path
}

// Schema returns the column layout of the store
func (s *Store) Schema() Schema {
	return s.opts.Schema
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Select returns the rows of kind matched by q, in the order of q
func (s *Store) Select(ctx context.Context, kind models.Kind, q Query) ([]Row, error) {
	where, order, args, orderArgs, ok := q.render(kind, s.opts.Schema)
	if !ok {
		return nil, nil
	}
	args = append(args, orderArgs...)

	cols := columns(kind, s.opts.Schema)
	statement := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table(kind))
	if where != "" {
		statement += " WHERE " + where
	}
	if order != "" {
		statement += " ORDER BY " + order
	}
	if q.Limit > 0 {
		statement += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		row, err := s.scan(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) scan(kind models.Kind, rows *sql.Rows) (Row, error) {
	var (
		written            sql.NullInt64
		settings           sql.NullString
		imdb, tmdb, tvdb   sql.NullString
		trakt, slug        sql.NullString
		season             sql.NullInt64
		partBlob, dataBlob []byte
		dest               []any
	)
	if s.opts.Schema == Primary {
		dest = append(dest, &written, &settings)
	}
	dest = append(dest, &imdb, &tmdb, &tvdb, &trakt)
	if s.opts.Schema == Primary {
		dest = append(dest, &slug)
	}
	if kind == models.KindEpisode {
		dest = append(dest, &season)
	}
	dest = append(dest, &partBlob, &dataBlob)

	if err := rows.Scan(dest...); err != nil {
		return Row{}, err
	}

	row := Row{
		Time:     written.Int64,
		Settings: settings.String,
		IDs: models.IDs{
			IMDb:  imdb.String,
			TMDb:  tmdb.String,
			TVDb:  tvdb.String,
			Trakt: trakt.String,
			Slug:  slug.String,
		},
		Part: s.decode(kind, partBlob),
		Data: s.decode(kind, dataBlob),
	}
	if season.Valid {
		n := int(season.Int64)
		row.Season = &n
	}
	return row, nil
}

// decode returns nil for empty or undecodable blobs; callers treat nil data as a miss
func (s *Store) decode(kind models.Kind, blob []byte) json.RawMessage {
	if len(blob) == 0 {
		return nil
	}
	decoded, err := s.codec.Decode(blob)
	if err == nil && !json.Valid(decoded) {
		err = errors.New("invalid json")
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"kind":  kind,
			"codec": s.codec.Name(),
		}).WithError(err).Debug("Failed to decode row")
		return nil
	}
	return decoded
}

func (s *Store) encode(value json.RawMessage) ([]byte, error) {
	if len(value) == 0 {
		return nil, nil
	}
	return s.codec.Encode(value)
}

// Insert inserts or replaces rows in a single transaction
func (s *Store) Insert(ctx context.Context, kind models.Kind, rows []Row) error {
	replacements := make([]Replacement, len(rows))
	for i, row := range rows {
		replacements[i] = Replacement{Row: row}
	}
	return s.Replace(ctx, kind, replacements)
}

// Replace runs every replacement in a single transaction. A replacement whose
// Delete query has no ids only inserts.
func (s *Store) Replace(ctx context.Context, kind models.Kind, replacements []Replacement) error {
	if len(replacements) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols := columns(kind, s.opts.Schema)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table(kind), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	for _, replacement := range replacements {
		if replacement.Delete.Match != MatchNone {
			where, _, args, _, ok := replacement.Delete.render(kind, s.opts.Schema)
			if ok {
				if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table(kind), where), args...); err != nil {
					return fmt.Errorf("failed to delete %s: %w", kind, err)
				}
			}
		}

		values, err := s.values(kind, replacement.Row)
		if err != nil {
			return err
		}
		if _, err := insert.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) values(kind models.Kind, row Row) ([]any, error) {
	part, err := s.encode(row.Part)
	if err != nil {
		return nil, fmt.Errorf("failed to encode part: %w", err)
	}
	data, err := s.encode(row.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	var values []any
	if s.opts.Schema == Primary {
		values = append(values, row.Time, row.Settings)
	}
	values = append(values, row.IDs.IMDb, row.IDs.TMDb, row.IDs.TVDb, row.IDs.Trakt)
	if s.opts.Schema == Primary {
		values = append(values, row.IDs.Slug)
	}
	if kind == models.KindEpisode {
		season := 0
		if row.Season != nil {
			season = *row.Season
		}
		values = append(values, season)
	}
	var partValue, dataValue any
	if part != nil {
		partValue = part
	}
	if data != nil {
		dataValue = data
	}
	return append(values, partValue, dataValue), nil
}

// Delete removes the rows matched by q and returns how many were removed
func (s *Store) Delete(ctx context.Context, kind models.Kind, q Query) (int64, error) {
	where, _, args, _, ok := q.render(kind, s.opts.Schema)
	if !ok {
		return 0, nil
	}
	if where == "" {
		where = "1 = 1"
	}
	return s.DeleteBy(ctx, kind, where, args...)
}

// DeleteBy removes the rows of kind matching a raw predicate
func (s *Store) DeleteBy(ctx context.Context, kind models.Kind, where string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table(kind), where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return result.RowsAffected()
}

// Count returns the number of rows of kind
func (s *Store) Count(ctx context.Context, kind models.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table(kind))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return count, nil
}

// Compact reclaims unused space. It can stall for seconds on large stores.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to compact: %w", err)
	}
	return nil
}

// Columns returns the column names of a kind's table, empty if it does not exist
func (s *Store) Columns(ctx context.Context, kind models.Kind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return tableColumns(ctx, s.db, kind)
}

func tableColumns(ctx context.Context, db *sql.DB, kind models.Kind) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table(kind)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) writable() error {
	if s.closed {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	return nil
}
