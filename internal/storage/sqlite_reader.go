package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// ReadOption configures what Load reads from a cache.
type ReadOption func(*cacheReader)

// WithoutData reads attributes, axes and column names only. Measurement and
// series values are left nil, which is what the lazy loading of a dataset
// needs before the caller asks for the data.
func WithoutData() ReadOption {
	return func(r *cacheReader) {
		r.withoutData = true
	}
}

type cacheReader struct {
	db *sql.DB

	withoutData bool

	snap *Snapshot
}

// Load reads the snapshot stored in the cache.
func (c *SqliteCache) Load(ctx context.Context, opts ...ReadOption) (snap *Snapshot, err error) {
	if !c.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, c.path)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", c.path, "mode=ro"))
	if err != nil {
		return nil, fmt.Errorf("opening read connection: %w", err)
	}
	defer closeWithError(db, &err)

	r := &cacheReader{db: db, snap: &Snapshot{}}
	for _, opt := range opts {
		opt(r)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "reading attributes", fn: r.readAttributes},
		{msg: "reading columns", fn: r.readColumns},
	}
	for _, s := range steps {
		if err = s.fn(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.msg, c.path, err)
		}
	}
	return r.snap, nil
}

func (r *cacheReader) readAttributes(ctx context.Context) (err error) {
	rows, err := r.db.QueryContext(ctx, selectAttributesSQL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptCache, err)
	}
	defer closeWithError(rows, &err)

	attrs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err = rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scanning attribute: %w", err)
		}
		attrs[name] = value
	}
	if err = rows.Err(); err != nil {
		return err
	}

	if v := attrs[attrVersion]; v != schemaVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrCorruptCache, v)
	}
	if attrs[attrState] != stateValue {
		return fmt.Errorf("%w: unexpected state %q", ErrCorruptCache, attrs[attrState])
	}

	r.snap.Observer = attrs[attrObserver]
	r.snap.Source = attrs[attrSource]

	if v, ok := attrs[attrFrequencyResolution]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptCache, attrFrequencyResolution, err)
		}
		r.snap.FrequencyResolution = &n
	}
	if v, ok := attrs[attrTimeMinimum]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptCache, attrTimeMinimum, err)
		}
		r.snap.TimeMinimum = &f
	}
	return nil
}

func (r *cacheReader) readColumns(ctx context.Context) (err error) {
	query := selectColumnsSQL
	if r.withoutData {
		query = selectColumnHeadersSQL
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptCache, err)
	}
	defer closeWithError(rows, &err)

	var haveTime, haveFreq bool
	for rows.Next() {
		var col columnData
		if err = rows.Scan(&col.Kind, &col.Name, &col.Units, &col.Rows, &col.Cols, &col.Codec, &col.Data, &col.Axis); err != nil {
			return fmt.Errorf("scanning column: %w", err)
		}

		switch col.Kind {
		case kindAxis:
			values, err := decodeFloats(col.Data, col.Codec, col.Rows)
			if err != nil {
				return fmt.Errorf("%w: axis %s: %w", ErrCorruptCache, col.Name, err)
			}
			switch col.Name {
			case columnTime:
				r.snap.Time, r.snap.TimeUnit, haveTime = floatsToJulian(values), col.Units, true
			case columnFrequency:
				r.snap.Frequency, r.snap.FrequencyUnit, haveFreq = values, col.Units, true
			}

		case kindMeasurement:
			m := Measurement{Name: col.Name, Units: col.Units}
			if !r.withoutData {
				values, err := decodeFloats(col.Data, col.Codec, col.Rows*col.Cols)
				if err != nil {
					return fmt.Errorf("%w: measurement %s: %w", ErrCorruptCache, col.Name, err)
				}
				m.Data = mat.NewDense(col.Rows, col.Cols, values)
			}
			r.snap.Measurements = append(r.snap.Measurements, m)

		case kindSeries:
			s := Series{Name: col.Name, Units: col.Units}
			if !r.withoutData {
				if s.Values, err = decodeFloats(col.Data, col.Codec, col.Rows); err != nil {
					return fmt.Errorf("%w: series %s: %w", ErrCorruptCache, col.Name, err)
				}
				t, err := decodeFloats(col.Axis, codecRaw, col.Rows)
				if err != nil {
					return fmt.Errorf("%w: series %s time: %w", ErrCorruptCache, col.Name, err)
				}
				s.Time = floatsToJulian(t)
			}
			r.snap.Series = append(r.snap.Series, s)
		}
	}
	if err = rows.Err(); err != nil {
		return err
	}

	if !haveTime || !haveFreq {
		return fmt.Errorf("%w: missing axis columns", ErrCorruptCache)
	}

	sort.Slice(r.snap.Measurements, func(i, j int) bool { return r.snap.Measurements[i].Name < r.snap.Measurements[j].Name })
	sort.Slice(r.snap.Series, func(i, j int) bool { return r.snap.Series[i].Name < r.snap.Series[j].Name })
	return nil
}
