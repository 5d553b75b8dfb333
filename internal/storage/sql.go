package storage

import (
	_ "embed"
)

const (
	insertAttributeSQL = `
INSERT INTO attributes (name, value)
VALUES (?, ?)`

	selectAttributesSQL = `
SELECT
    name,
    value
FROM attributes`

	insertColumnSQL = `
INSERT INTO columns (kind,
                     name,
                     units,
                     n_rows,
                     n_cols,
                     codec,
                     data,
                     axis)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectColumnsSQL = `
SELECT
    kind,
    name,
    units,
    n_rows,
    n_cols,
    codec,
    data,
    axis
FROM columns
ORDER BY kind, name`

	selectColumnHeadersSQL = `
SELECT
    kind,
    name,
    units,
    n_rows,
    n_cols,
    codec,
    CASE WHEN kind = 'axis' THEN data ELSE x'' END,
    NULL
FROM columns
ORDER BY kind, name`
)

//go:embed schema.sql
var schemaSQL string
