package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrCacheNotFound   = errors.New("cache file not found")
	ErrCorruptCache    = errors.New("corrupt cache file")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// SqliteCache stores a Snapshot in a SQLite database file.
type SqliteCache struct {
	path string
}

var _ Store = (*SqliteCache)(nil)

// NewSqliteCache returns a cache backed by the file at path. Nothing is
// opened until the first call.
func NewSqliteCache(path string) *SqliteCache {
	return &SqliteCache{path: path}
}

func (c *SqliteCache) Path() string {
	return c.path
}

func (c *SqliteCache) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && info.Mode().IsRegular()
}

func runSQLCommand(ctx context.Context, db *sql.DB, sql string) error {
	_, err := db.ExecContext(ctx, sql)
	return err
}

// Save writes snap to a temporary file next to the cache and renames it into
// place, so an interrupted save leaves any previous cache intact.
func (c *SqliteCache) Save(ctx context.Context, snap *Snapshot) (err error) {
	if err = snap.validate(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err = writeSnapshot(ctx, tmpPath, snap); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err = os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}

func writeSnapshot(ctx context.Context, path string, snap *Snapshot) (err error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=OFF&_synchronous=OFF"))
	if err != nil {
		return fmt.Errorf("opening write connection: %w", err)
	}
	defer closeWithError(db, &err)

	if err = runSQLCommand(ctx, db, schemaSQL); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	columns, err := snap.columns()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	attrStmt, err := tx.PrepareContext(ctx, insertAttributeSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(attrStmt, &err)

	attrs := snap.attributes()
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err = attrStmt.ExecContext(ctx, name, attrs[name]); err != nil {
			return fmt.Errorf("inserting attribute %s: %w", name, err)
		}
	}

	colStmt, err := tx.PrepareContext(ctx, insertColumnSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(colStmt, &err)

	for _, col := range columns {
		if _, err = colStmt.ExecContext(ctx,
			col.Kind,
			col.Name,
			col.Units,
			col.Rows,
			col.Cols,
			col.Codec,
			col.Data,
			col.Axis,
		); err != nil {
			return fmt.Errorf("inserting %s %s: %w", col.Kind, col.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Snapshot) validate() error {
	t, f := len(s.Time), len(s.Frequency)
	if t == 0 || f == 0 {
		return fmt.Errorf("%w: empty axis (%d times, %d frequencies)", ErrInvalidSnapshot, t, f)
	}

	seen := make(map[string]struct{}, len(s.Measurements))
	for _, m := range s.Measurements {
		if m.Data == nil {
			return fmt.Errorf("%w: measurement %q has no data", ErrInvalidSnapshot, m.Name)
		}
		if r, c := m.Data.Dims(); r != t || c != f {
			return fmt.Errorf("%w: measurement %q is %dx%d, axes are %dx%d", ErrInvalidSnapshot, m.Name, r, c, t, f)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("%w: measurement %q appears twice", ErrInvalidSnapshot, m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	for _, ser := range s.Series {
		if len(ser.Time) != len(ser.Values) {
			return fmt.Errorf("%w: series %q has %d times and %d values", ErrInvalidSnapshot, ser.Name, len(ser.Time), len(ser.Values))
		}
	}
	return nil
}

func (s *Snapshot) attributes() map[string]string {
	attrs := map[string]string{
		attrObserver: s.Observer,
		attrSource:   s.Source,
		attrState:    stateValue,
		attrVersion:  schemaVersion,
	}
	if s.FrequencyResolution != nil {
		attrs[attrFrequencyResolution] = strconv.Itoa(*s.FrequencyResolution)
	}
	if s.TimeMinimum != nil {
		attrs[attrTimeMinimum] = strconv.FormatFloat(*s.TimeMinimum, 'g', -1, 64)
	}
	return attrs
}

func (s *Snapshot) columns() ([]columnData, error) {
	var out []columnData

	timeData, codec, err := encodeFloats(julianToFloats(s.Time), false)
	if err != nil {
		return nil, err
	}
	out = append(out, columnData{Kind: kindAxis, Name: columnTime, Units: s.TimeUnit, Rows: len(s.Time), Cols: 1, Codec: codec, Data: timeData})

	freqData, codec, err := encodeFloats(s.Frequency, false)
	if err != nil {
		return nil, err
	}
	out = append(out, columnData{Kind: kindAxis, Name: columnFrequency, Units: s.FrequencyUnit, Rows: len(s.Frequency), Cols: 1, Codec: codec, Data: freqData})

	for _, m := range s.Measurements {
		rows, cols := m.Data.Dims()
		raw := m.Data.RawMatrix()
		values := raw.Data[:rows*cols]
		if raw.Stride != cols {
			values = mat.DenseCopyOf(m.Data).RawMatrix().Data
		}

		data, codec, err := encodeFloats(values, true)
		if err != nil {
			return nil, fmt.Errorf("encoding measurement %q: %w", m.Name, err)
		}
		out = append(out, columnData{Kind: kindMeasurement, Name: m.Name, Units: m.Units, Rows: rows, Cols: cols, Codec: codec, Data: data})
	}

	for _, ser := range s.Series {
		data, codec, err := encodeFloats(ser.Values, false)
		if err != nil {
			return nil, fmt.Errorf("encoding series %q: %w", ser.Name, err)
		}
		axis, _, err := encodeFloats(julianToFloats(ser.Time), false)
		if err != nil {
			return nil, fmt.Errorf("encoding series %q: %w", ser.Name, err)
		}
		out = append(out, columnData{Kind: kindSeries, Name: ser.Name, Units: ser.Units, Rows: len(ser.Values), Cols: 1, Codec: codec, Data: data, Axis: axis})
	}
	return out, nil
}
