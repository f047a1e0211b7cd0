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

// Package chromedb reads a Chromium-family cookie database.
//
// Chromium browsers (Chrome, Edge, Brave, Arc, Opera, and so on) keep
// cookies in an SQLite database whose values are encrypted with a key
// derived from an OS-keychain secret. This package opens the database
// read-only, selects rows by name and host pattern, and provides the value
// decryption primitives (see crypt.go).
//
// A running browser holds its database locked. By default a locked database
// reports a *LockError; with Options.Force the file is copied to a scratch
// path and the query retried against the copy.
package chromedb

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/creachadair/atomicfile"

	_ "modernc.org/sqlite"
)

const (
	readCookiesStmt = `
SELECT
  host_key, name, encrypted_value, value, path,
  expires_utc, is_secure, is_httponly, creation_utc
FROM cookies
WHERE name LIKE ?1 AND host_key LIKE ?2
ORDER BY rowid;`

	// The Chromium timestamp epoch in seconds, 1601-01-01T00:00:00Z.
	chromeEpoch = 11644473600
)

// A LockError reports that the cookie database is held by another process,
// typically the owning browser.
type LockError struct {
	Path string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("cookie database %q is locked by another process", e.Path)
}

// Open opens the Chromium cookie database at the specified path read-only.
// If opts == nil, default options are used. Open does not touch the file;
// lock contention surfaces on the first query.
func Open(path string, opts *Options) (*Store, error) {
	db, err := sql.Open(opts.driver(), roDSN(path))
	if err != nil {
		return nil, err
	}
	return &Store{
		db:    db,
		path:  path,
		force: opts.forceCopy(),
	}, nil
}

func roDSN(path string) string { return "file:" + path + "?mode=ro" }

// Options provide optional settings for opening a Chromium cookie database.
// A nil *Options is ready for use, and provides empty values.
type Options struct {
	// Copy a locked database to a scratch path and retry, instead of
	// reporting a LockError.
	Force bool
}

func (o *Options) forceCopy() bool { return o != nil && o.Force }

func (*Options) driver() string { return "sqlite" }

// A Store is a read-only connection to a Chromium cookie database.
type Store struct {
	db    *sql.DB
	path  string
	force bool

	scratch string // path of the scratch copy, if one was made
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

// A Row is one raw cookie row from the database. The value may be in either
// the plaintext Value column or the EncryptedValue blob; decryption is the
// caller's concern.
type Row struct {
	HostKey        string
	Name           string
	EncryptedValue []byte
	Value          string
	Path           string
	ExpiresUTC     int64 // microseconds since the Chromium epoch; 0 for session
	Secure         bool
	HTTPOnly       bool
	CreationUTC    int64 // microseconds since the Chromium epoch; 0 if unset
}

// Expires converts the row's raw expiration to a time. A stored zero (a
// session cookie) maps to the zero time.
func (r Row) Expires() time.Time { return timestampToTime(r.ExpiresUTC) }

// Created converts the row's raw creation stamp to a time.
func (r Row) Created() time.Time { return timestampToTime(r.CreationUTC) }

// Query returns the rows whose name and host match the given SQL LIKE
// patterns, in rowid order.
//
// If the database is locked by another process the result is a *LockError,
// unless the store was opened with Force, in which case the file is copied
// to a scratch path and the query runs against the copy.
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
		var isSecure, isHTTPOnly int64
		if err := rows.Scan(&r.HostKey, &r.Name, &r.EncryptedValue, &r.Value, &r.Path,
			&r.ExpiresUTC, &isSecure, &isHTTPOnly, &r.CreationUTC); err != nil {
			return nil, err
		}
		r.Secure = isSecure != 0
		r.HTTPOnly = isHTTPOnly != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// reopenFromScratch copies the database file to a scratch directory and
// swaps the store's handle to the copy. Reading the raw file bytes is
// possible even while SQLite-level locks are held.
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

// isLocked reports whether err looks like SQLite lock contention.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// timestampToTime converts a value in microseconds since the Chromium epoch
// to a time in UTC. Zero maps to the zero time.
func timestampToTime(usec int64) time.Time {
	if usec == 0 {
		return time.Time{}
	}
	ms := usec/1000 - chromeEpoch*1000
	return time.UnixMilli(ms).In(time.UTC)
}

// TimeToTimestamp converts a time value to microseconds since the Chromium
// epoch, for constructing test fixtures and encoding.
func TimeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return (t.Unix()+chromeEpoch)*1e6 + int64(t.Nanosecond())/1000
}

// DefaultIterations reports the PBKDF2 iteration count Chromium uses on the
// current platform.
func DefaultIterations() int {
	if runtime.GOOS == "darwin" {
		return 1003
	}
	return 1
}
