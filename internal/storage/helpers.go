package storage

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back an unfinished transaction. A transaction that
// has already been committed is left alone.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// encodeFloats serialises values as little-endian float64, optionally zlib
// compressed.
func encodeFloats(values []float64, compress bool) ([]byte, string, error) {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	if !compress {
		return raw, codecRaw, nil
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return nil, "", err
	}
	if _, err = zw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("compressing: %w", err)
	}
	if err = zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compressing: %w", err)
	}
	return buf.Bytes(), codecZlib, nil
}

func decodeFloats(data []byte, codec string, n int) ([]float64, error) {
	raw := data
	switch codec {
	case codecRaw:
	case codecZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
		defer zr.Close()

		raw = make([]byte, 8*n)
		if _, err = io.ReadFull(zr, raw); err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}

	if len(raw) != 8*n {
		return nil, fmt.Errorf("expected %d values, got %d bytes", n, len(raw))
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

func julianToFloats(t []epoch.JulianDate) []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = float64(v)
	}
	return out
}

func floatsToJulian(v []float64) []epoch.JulianDate {
	out := make([]epoch.JulianDate, len(v))
	for i, f := range v {
		out[i] = epoch.JulianDate(f)
	}
	return out
}
