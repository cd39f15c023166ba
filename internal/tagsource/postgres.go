// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tagsource

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/logging"
	"tiasync/cli/internal/unified"
)

// Querier is the part of a pgx pool or connection the database source uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Columns each table must provide.
var (
	TagColumns   = []string{"device", "connection", "plc_tag", "name", "folder"}
	AlarmColumns = []string{"device", "class", "tag", "origin", "language", "text"}
)

// DB reads desired tags and alarms from the plant tag database. The tag table has
// one row per HMI tag; the alarm table one row per alarm and language.
type DB struct {
	q          Querier
	pool       *pgxpool.Pool
	TagTable   string
	AlarmTable string
}

// NewDB wraps an existing querier.
func NewDB(q Querier, tagTable, alarmTable string) *DB {
	return &DB{q: q, TagTable: tagTable, AlarmTable: alarmTable}
}

// Open connects a pool to dsn and pings it.
func Open(ctx context.Context, dsn, tagTable, alarmTable string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, terr.Wrap(terr.InvalidInput, "tag database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, terr.Wrap(terr.BackendFailed, "connect to tag database", err)
	}
	db := NewDB(pool, tagTable, alarmTable)
	db.pool = pool
	return db, nil
}

// Close releases the pool opened by Open.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// splitTable turns "schema.table" into its parts, defaulting to public.
func splitTable(name string) (schema, table string) {
	if s, t, ok := strings.Cut(name, "."); ok {
		return s, t
	}
	return "public", name
}

// CheckSchema verifies both tables carry the columns Load selects.
func (db *DB) CheckSchema(ctx context.Context) error {
	for _, tc := range []struct {
		table string
		cols  []string
	}{{db.TagTable, TagColumns}, {db.AlarmTable, AlarmColumns}} {
		schema, table := splitTable(tc.table)
		rows, err := db.q.Query(ctx, `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2`, schema, table)
		if err != nil {
			return terr.Wrap(terr.BackendFailed, "inspect "+tc.table, err)
		}
		have := make(map[string]bool)
		for rows.Next() {
			var col string
			if err := rows.Scan(&col); err != nil {
				rows.Close()
				return terr.Wrap(terr.BackendFailed, "inspect "+tc.table, err)
			}
			have[col] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return terr.Wrap(terr.BackendFailed, "inspect "+tc.table, err)
		}
		var missing []string
		for _, c := range tc.cols {
			if !have[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return terr.Newf(terr.InvalidInput, "table %s lacks columns %s", tc.table, strings.Join(missing, ", "))
		}
	}
	return nil
}

// Load reads the requests for device, or for every device when device is empty.
func (db *DB) Load(ctx context.Context, device string) (*Set, error) {
	set := &Set{}

	query := fmt.Sprintf(`
		SELECT device, connection, plc_tag, name, coalesce(folder, '')
		FROM %s
		WHERE $1::text = '' OR device = $1
		ORDER BY device, name`, ident(db.TagTable))
	logging.Debugf("tag query on %s for device %q", db.TagTable, device)
	rows, err := db.q.Query(ctx, query, device)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "query "+db.TagTable, err)
	}
	for rows.Next() {
		var t unified.TagRequest
		if err := rows.Scan(&t.Device, &t.Connection, &t.PlcTag, &t.Name, &t.Folder); err != nil {
			rows.Close()
			return nil, terr.Wrap(terr.BackendFailed, "read "+db.TagTable, err)
		}
		set.Tags = append(set.Tags, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "read "+db.TagTable, err)
	}

	query = fmt.Sprintf(`
		SELECT device, class, tag, coalesce(origin, ''), language, coalesce(text, '')
		FROM %s
		WHERE $1::text = '' OR device = $1
		ORDER BY device, tag, language`, ident(db.AlarmTable))
	rows, err = db.q.Query(ctx, query, device)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "query "+db.AlarmTable, err)
	}
	index := make(map[[2]string]int)
	for rows.Next() {
		var dev, class, tag, origin, lang, text string
		if err := rows.Scan(&dev, &class, &tag, &origin, &lang, &text); err != nil {
			rows.Close()
			return nil, terr.Wrap(terr.BackendFailed, "read "+db.AlarmTable, err)
		}
		key := [2]string{dev, tag}
		i, ok := index[key]
		if !ok {
			i = len(set.Alarms)
			index[key] = i
			set.Alarms = append(set.Alarms, unified.AlarmRequest{
				Device:       dev,
				ClassName:    class,
				TagName:      tag,
				Origin:       origin,
				Descriptions: make(map[string]string),
			})
		}
		set.Alarms[i].Descriptions[lang] = text
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "read "+db.AlarmTable, err)
	}
	logging.Debugf("loaded %d tags and %d alarms", len(set.Tags), len(set.Alarms))
	return set, nil
}

func ident(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
