// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persist keeps the OAuth 2.0 token in a SQLite database so
// the browser consent step runs only once.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gologme/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Single account; see the oauth_tokens table.
const defaultAccount = "default"

var (
	createTableSql = []string{
		// The oauth_tokens table holds the most recent OAuth 2.0
		// token for each account.
		//
		// Field: account
		//
		//   Local name for the account.  Only "default" is used.
		//
		// Field: token
		//
		//   The oauth2.Token encoded as JSON, including the refresh
		//   token.
		//
		// Field: updated
		//
		//   Unix time, in seconds, of the last write.
		`
CREATE TABLE IF NOT EXISTS oauth_tokens (
account TEXT NOT NULL PRIMARY KEY,
token TEXT NOT NULL,
updated INTEGER NOT NULL
);`,
	}
)

type DB struct {
	db     *sql.DB
	logger *log.Logger
}

type Tx struct {
	tx *sql.Tx
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Path: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func Open(ctx context.Context, path string, logger *log.Logger) (*DB, error) {
	// The _busy_timeout is a SQLite extension that controls how
	// long SQLite will poll before giving up.
	var busyTimeout = int(30*time.Second) / int(time.Millisecond)

	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout)}})
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not form a DB DSN from "+
				"the given path",
			path)
	}
	logger.Infof("opening database at %q", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not open database at %q",
			path, dsn)
	}

	if err = initSchema(ctx, db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not initialize the "+
				"database schema", path)
	}

	return &DB{db: db, logger: logger}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &Tx{tx}, nil
}

func (tx *Tx) Commit() error {
	return tx.tx.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

func initSchema(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	for _, sql := range createTableSql {
		logger.Debugf("SQL Exec: %q", sql)
		if _, err := db.ExecContext(ctx, sql); err != nil {
			return errors.Wrapf(err, "while executing %q", sql)
		}
	}

	return nil
}

func encodeToken(tok *oauth2.Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", errors.Wrap(err, "encoding token")
	}
	return string(b), nil
}

func decodeToken(s string) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(s), tok); err != nil {
		return nil, errors.Wrap(err, "decoding stored token")
	}
	return tok, nil
}

// Token returns the stored token, or nil if none was saved yet.
func (tx *Tx) Token(ctx context.Context) (*oauth2.Token, error) {
	const q = `SELECT token FROM oauth_tokens WHERE account = $1`
	var s string
	if err := tx.tx.QueryRowContext(ctx, q, defaultAccount).Scan(&s); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "db query failed in Token")
	}
	return decodeToken(s)
}

func (tx *Tx) WriteToken(ctx context.Context, tok *oauth2.Token, now time.Time) error {
	s, err := encodeToken(tok)
	if err != nil {
		return err
	}
	const q = `INSERT INTO oauth_tokens (account, token, updated) values ($1, $2, $3)
		ON CONFLICT (account)
		DO UPDATE SET (token, updated) = ($2, $3)`
	if _, err := tx.tx.ExecContext(ctx, q, defaultAccount, s, now.Unix()); err != nil {
		return errors.Wrap(err, "db upsert failed in WriteToken")
	}
	return nil
}

func (tx *Tx) DeleteToken(ctx context.Context) error {
	const q = `DELETE FROM oauth_tokens WHERE account = $1`
	if _, err := tx.tx.ExecContext(ctx, q, defaultAccount); err != nil {
		return errors.Wrap(err, "db delete failed in DeleteToken")
	}
	return nil
}

// LoadToken returns the stored token, or nil if none was saved yet.
func (db *DB) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return tx.Token(ctx)
}

// SaveToken replaces the stored token.
func (db *DB) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.WriteToken(ctx, tok, time.Now()); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed in SaveToken")
	}
	db.logger.Infof("saved OAuth token expiring %v", tok.Expiry)
	return nil
}

// DeleteToken forgets the stored token.  Deleting when nothing is
// stored is not an error.
func (db *DB) DeleteToken(ctx context.Context) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.DeleteToken(ctx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed in DeleteToken")
	}
	db.logger.Infof("deleted stored OAuth token")
	return nil
}
