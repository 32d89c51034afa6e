// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of the acquisition setup.
package conddb // import "github.com/go-lpc/npx/conddb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

var (
	// ErrNoSettings is returned when no settings are stored for a probe.
	ErrNoSettings = errors.New("conddb: no probe settings")
)

// DB exposes convenience methods to easily retrieve conditions data
// and configuration data from the acquisition database.
type DB struct {
	db   *sql.DB
	name string // name of the acquisition database
}

// Open opens a connection to the acquisition database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ProbeSettings returns the last settings stored for the probe
// with the provided serial number.
func (db *DB) ProbeSettings(ctx context.Context, serial uint64) (ProbeSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg := ProbeSettings{Serial: serial}
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT ap_gain, lfp_gain, reference, ap_filter FROM probes
WHERE serial=?
ORDER BY datetime DESC LIMIT 1
`,
		serial,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not query probe settings (serial=%d): %w", serial, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		err = rows.Scan(&cfg.APGain, &cfg.LFPGain, &cfg.Reference, &cfg.APFilter)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not scan probe settings (serial=%d): %w", serial, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for probe settings: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving probe settings: %w", err)
	}

	if !found {
		return cfg, fmt.Errorf("conddb: probe serial=%d: %w", serial, ErrNoSettings)
	}

	return cfg, nil
}

// SavingDirectories returns the saving directory configured
// for each basestation slot.
func (db *DB) SavingDirectories(ctx context.Context) (map[int]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dirs := make(map[int]string)
	rows, err := db.db.QueryContext(ctx, "SELECT slot, directory FROM basestations")
	if err != nil {
		return dirs, fmt.Errorf("conddb: could not query saving directories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slot int
			dir  string
		)
		err = rows.Scan(&slot, &dir)
		if err != nil {
			return dirs, fmt.Errorf("conddb: could not scan saving directory: %w", err)
		}
		dirs[slot] = dir
	}

	if err := rows.Err(); err != nil {
		return dirs, fmt.Errorf("conddb: could not scan db for saving directories: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return dirs, fmt.Errorf("conddb: context error while retrieving saving directories: %w", err)
	}

	return dirs, nil
}

// AddRecording stores the description of a recording session.
func (db *DB) AddRecording(ctx context.Context, rec Recording) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO recordings (number, folder, nfiles, start) VALUES (?, ?, ?, ?)",
		rec.Number, rec.Folder, int64(len(rec.Files)), rec.Start,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not insert recording %d: %w", rec.Number, err)
	}
	return nil
}
