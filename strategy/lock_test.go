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

package strategy_test

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/strategy"

	_ "modernc.org/sqlite"
)

// lockDB opens a second connection to the database at path and holds an
// exclusive transaction on it until the test ends, standing in for a
// running browser.
func lockDB(t *testing.T, path string) {
	t.Helper()
	locker, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("opening locker: %v", err)
	}
	ctx := context.Background()
	conn, err := locker.Conn(ctx)
	if err != nil {
		t.Fatalf("pinning locker connection: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatalf("taking exclusive lock: %v", err)
	}
	t.Cleanup(func() {
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		locker.Close()
	})
}

// captureLogs redirects the default logger to a buffer for the duration of
// the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func makeFirefoxDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "cookies.sqlite")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer db.Close()
	const create = `
CREATE TABLE moz_cookies (
  id INTEGER PRIMARY KEY,
  host TEXT, name TEXT, value TEXT, path TEXT,
  expiry INTEGER NOT NULL DEFAULT 0,
  isSecure INTEGER NOT NULL DEFAULT 0,
  isHttpOnly INTEGER NOT NULL DEFAULT 0,
  creationTime INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(create); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO moz_cookies (host, name, value, path)
  VALUES ('.example.com', 'sid', 'abc', '/')`); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	return path
}

func TestChromiumLockedStore(t *testing.T) {
	path := makeChromeDB(t, t.TempDir(), []chromeRow{
		{host: ".example.com", name: "sid", value: "abc"},
	})
	lockDB(t, path)
	logs := captureLogs(t)

	s := strategy.NewChromium(strategy.Variant{
		Name:    "chrome",
		Service: "Cookiequery Test Safe Storage",
		Vendor:  []string{"Google", "Chrome"},
	})

	// Without force the store is skipped: no cookies, no error, and exactly
	// one lock diagnostic naming the file.
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{}, strategy.Options{Store: path})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("locked store without force: got %v, want empty non-nil slice", got)
	}
	if n := strings.Count(logs.String(), "locked"); n != 1 {
		t.Errorf("got %d lock log records, want 1; logs:\n%s", n, logs)
	}
	if !strings.Contains(logs.String(), path) {
		t.Errorf("lock log does not name %q; logs:\n%s", path, logs)
	}

	// With force the value is read through the scratch copy, still
	// attributed to the original store file.
	logs.Reset()
	got, err = s.QueryCookies(context.Background(), cookiequery.Spec{},
		strategy.Options{Store: path, Force: true})
	if err != nil {
		t.Fatalf("QueryCookies with force: %v", err)
	}
	if len(got) != 1 || got[0].Value != "abc" {
		t.Fatalf("locked store with force: got %+v, want the sid cookie", got)
	}
	if got[0].Meta.File != path {
		t.Errorf("provenance: got %q, want %q", got[0].Meta.File, path)
	}
}

func TestFirefoxLockedStore(t *testing.T) {
	path := makeFirefoxDB(t, t.TempDir())
	lockDB(t, path)
	logs := captureLogs(t)

	s := strategy.NewFirefox()
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{}, strategy.Options{Store: path})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("locked store without force: got %v, want empty non-nil slice", got)
	}
	if n := strings.Count(logs.String(), "locked"); n != 1 {
		t.Errorf("got %d lock log records, want 1; logs:\n%s", n, logs)
	}

	got, err = s.QueryCookies(context.Background(), cookiequery.Spec{},
		strategy.Options{Store: path, Force: true})
	if err != nil {
		t.Fatalf("QueryCookies with force: %v", err)
	}
	if len(got) != 1 || got[0].Value != "abc" {
		t.Errorf("locked store with force: got %+v, want the sid cookie", got)
	}
}
