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

package strategy

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/profiles"
	"github.com/google/go-cmp/cmp"

	_ "modernc.org/sqlite"
)

func seedChromeDB(t *testing.T, path, host, name, value string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer db.Close()
	const create = `
CREATE TABLE cookies (
  creation_utc INTEGER NOT NULL DEFAULT 0,
  host_key TEXT NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL DEFAULT '',
  encrypted_value BLOB DEFAULT '',
  path TEXT NOT NULL DEFAULT '/',
  expires_utc INTEGER NOT NULL DEFAULT 0,
  is_secure INTEGER NOT NULL DEFAULT 0,
  is_httponly INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(create); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO cookies (host_key, name, value) VALUES (?, ?, ?)`,
		host, name, value); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
}

// A wildcard query across two discovered profiles must return both cookies
// in profile enumeration order, each tagged with its own store file.
func TestChromiumProfileFanOut(t *testing.T) {
	home := t.TempDir()
	v := Variant{Name: "chrome", Service: "Cookiequery Test Safe Storage",
		Vendor: []string{"Google", "Chrome"}}
	root := profiles.ChromiumRoot(home, v.Vendor...)

	p1 := filepath.Join(root, "p1", "Cookies")
	p2 := filepath.Join(root, "p2", "Cookies")
	seedChromeDB(t, p1, ".example.com", "a", "1")
	seedChromeDB(t, p2, ".example.com", "b", "2")

	s := &Chromium{Variant: v, home: home}
	got, err := s.QueryCookies(context.Background(),
		cookiequery.Spec{Name: "%", Domain: "%"}, Options{})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}

	var names, files []string
	for _, c := range got {
		names = append(names, c.Name)
		files = append(files, c.Meta.File)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("names: (-want, +got)\n%s", diff)
	}
	if diff := cmp.Diff([]string{p1, p2}, files); diff != "" {
		t.Errorf("files: (-want, +got)\n%s", diff)
	}
}

func TestChromiumMissingHome(t *testing.T) {
	s := &Chromium{Variant: Variants[0], home: filepath.Join(t.TempDir(), "nobody")}
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{}, Options{})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestFirefoxProfileDiscovery(t *testing.T) {
	home := t.TempDir()
	root := profiles.FirefoxRoot(home)
	store := filepath.Join(root, "abcd1234.default-release", "cookies.sqlite")
	if err := os.MkdirAll(filepath.Dir(store), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	db, err := sql.Open("sqlite", "file:"+store)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
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
	db.Close()

	s := &Firefox{home: home}
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{Name: "sid"}, Options{})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d cookies, want 1", len(got))
	}
	c := got[0]
	if c.Domain != "example.com" || c.Value != "abc" || c.Meta.File != store {
		t.Errorf("cookie: %+v", c)
	}
	if c.Meta.Browser != cookiequery.Firefox || c.Meta.Decrypted {
		t.Errorf("meta: %+v", c.Meta)
	}
	if !c.Expires.IsZero() {
		t.Errorf("session expiry: got %v, want zero", c.Expires)
	}
}
