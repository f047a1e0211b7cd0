// Copyright 2024 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package firefox reads a Firefox cookies database.
//
// Firefox keeps cookies in the moz_cookies table of an SQLite database with
// plaintext values, Unix-seconds expirations, and microsecond creation
// stamps. The reader opens the database read-only and selects rows by name
// and host pattern. A database locked by a running browser reports a
// *LockError unless the store was opened with Force, in which case the file
// is copied to a scratch path and the query retried against the copy.
package firefox

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creachadair/atomicfile"

	_ "modernc.org/sqlite"
)

const readCookiesStmt = `
SELECT host, name, value, path, expiry, isSecure, isHttpOnly, creationTime
FROM moz_cookies
WHERE name LIKE ?1 AND host LIKE ?2
ORDER BY id;`

// A LockError reports that the cookie database is held by another process,
// typically the owning browser.
type LockError struct {
	Path string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("cookie database %q is locked by another process", e.Path)
}

// Open opens the Firefox cookie database at the specified path read-only.
// If opts == nil, default options are used.
func Open(path string, opts *Options) (*Store, error) {
	db, err := sql.Open(opts.driver(), roDSN(path))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, force: opts.forceCopy()}, nil
}

func roDSN(path string) string { return "file:" + path + "?mode=ro" }

// Options are optional settings for a Store.
// A nil *Options is ready for use with default settings.
type Options struct {
	// Copy a locked database to a scratch path and retry, instead of
	// reporting a LockError.
	Force bool
}

func (o *Options) forceCopy() bool { return o != nil && o.Force }

func (*Options) driver() string { return "sqlite" }

// A Store is a read-only connection to a Firefox cookie database.
type Store struct {
	db    *sql.DB
	path  string
	force bool

	scratch string
}

// Close releases the database handle and removes any scratch copy.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.scratch != "" {
		os.RemoveAll(filepath.Dir(s.scratch))
		s.scratch = ""
	}
	return err
}

// A Row is one raw cookie row from moz_cookies. Values are plaintext.
type Row struct {
	Host         string
	Name         string
	Value        string
	Path         string
	Expiry       int64 // Unix seconds; 0 for a session cookie
	Secure       bool
	HTTPOnly     bool
	CreationTime int64 // microseconds since the Unix epoch; 0 if unset
}

// Expires converts the row's expiration to a time. A stored zero (a session
// cookie) maps to the zero time.
func (r Row) Expires() time.Time {
	if r.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(r.Expiry, 0).In(time.UTC)
}

// Created converts the row's creation stamp to a time.
func (r Row) Created() time.Time {
	if r.CreationTime == 0 {
		return time.Time{}
	}
	return time.UnixMicro(r.CreationTime).In(time.UTC)
}

// Query returns the rows whose name and host match the given SQL LIKE
// patterns, in id order.
func (s *Store) Query(namePattern, hostPattern string) ([]Row, error) {
	rows, err := s.readRows(namePattern, hostPattern)
	if err == nil || !isLocked(err) {
		return rows, err
	}
	if !s.force {
		return nil, &LockError{Path: s.path}
	}
	if err := s.reopenFromScratch(); err != nil {
		return nil, fmt.Errorf("copying locked database: %w", err)
	}
	return s.readRows(namePattern, hostPattern)
}

func (s *Store) readRows(namePattern, hostPattern string) ([]Row, error) {
	rows, err := s.db.Query(readCookiesStmt, namePattern, hostPattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Host, &r.Name, &r.Value, &r.Path,
			&r.Expiry, &r.Secure, &r.HTTPOnly, &r.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) reopenFromScratch() error {
	dir, err := os.MkdirTemp("", "cookiequery")
	if err != nil {
		return err
	}
	copyPath := filepath.Join(dir, filepath.Base(s.path))
	if err := copyFile(s.path, copyPath); err != nil {
		os.RemoveAll(dir)
		return err
	}
	db, err := sql.Open((*Options)(nil).driver(), roDSN(copyPath)+"&immutable=1")
	if err != nil {
		os.RemoveAll(dir)
		return err
	}
	s.db.Close()
	s.db = db
	s.scratch = copyPath
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := atomicfile.New(dst, 0600)
	if err != nil {
		return err
	}
	defer out.Cancel()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
