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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/bincookie"
	"github.com/creachadair/cookiequery/strategy"
	"github.com/google/go-cmp/cmp"
)

func writeSafariFixture(t *testing.T, f *bincookie.File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer out.Close()
	if _, err := f.WriteTo(out); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestSafariSingleCookie(t *testing.T) {
	path := writeSafariFixture(t, &bincookie.File{Pages: []*bincookie.Page{{
		Cookies: []*bincookie.Cookie{{
			URL:     ".example.com",
			Name:    "sid",
			Value:   []byte("abc"),
			Path:    "/",
			Expires: time.Unix(1678307200, 0).In(time.UTC), // Mac epoch 700000000
		}},
	}}})

	s := strategy.NewSafari()
	got, err := s.QueryCookies(context.Background(),
		cookiequery.Spec{Name: "sid", Domain: "example.com"},
		strategy.Options{Store: path})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	want := []cookiequery.Cookie{{
		Name:    "sid",
		Domain:  "example.com",
		Value:   "abc",
		Expires: time.Unix(1678307200, 0).In(time.UTC),
		Meta: cookiequery.Meta{
			File:    path,
			Browser: cookiequery.Safari,
			Path:    "/",
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result: (-want, +got)\n%s", diff)
	}
}

func TestSafariMatching(t *testing.T) {
	path := writeSafariFixture(t, &bincookie.File{Pages: []*bincookie.Page{{
		Cookies: []*bincookie.Cookie{{
			URL: ".example.com", Name: "sid", Value: []byte("1"), Path: "/",
		}, {
			URL: "mail.example.com", Name: "lang", Value: []byte("2"), Path: "/",
		}, {
			URL: "other.net", Name: "sid", Value: []byte("3"), Path: "/",
		}},
	}}})

	s := strategy.NewSafari()
	tests := []struct {
		desc string
		spec cookiequery.Spec
		want []string
	}{
		{"all", cookiequery.Spec{}, []string{"sid", "lang", "sid"}},
		{"by name", cookiequery.Spec{Name: "sid"}, []string{"sid", "sid"}},
		{"by domain", cookiequery.Spec{Domain: "example.com"}, []string{"sid", "lang"}},
		{"both", cookiequery.Spec{Name: "lang", Domain: "example.com"}, []string{"lang"}},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := s.QueryCookies(context.Background(), tc.spec, strategy.Options{Store: path})
			if err != nil {
				t.Fatalf("QueryCookies: %v", err)
			}
			if diff := cmp.Diff(tc.want, names(got)); diff != "" {
				t.Errorf("matches: (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestSafariPortAndComment(t *testing.T) {
	path := writeSafariFixture(t, &bincookie.File{Pages: []*bincookie.Page{{
		Cookies: []*bincookie.Cookie{{
			URL: ".example.com", Name: "sid", Value: []byte("v"), Path: "/",
			Version: 1, Port: 8443,
			Comment:    "session",
			CommentURL: "https://example.com/cookies",
			Flags:      bincookie.FlagSecure | bincookie.FlagHTTPOnly,
		}},
	}}})

	s := strategy.NewSafari()
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{}, strategy.Options{Store: path})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d cookies, want 1", len(got))
	}
	m := got[0].Meta
	if !m.Secure || !m.HTTPOnly || m.Version != 1 || m.Port != 8443 ||
		m.Comment != "session" || m.CommentURL != "https://example.com/cookies" {
		t.Errorf("meta: %+v", m)
	}
}

func TestSafariMissingStore(t *testing.T) {
	s := strategy.NewSafari()
	got, err := s.QueryCookies(context.Background(), cookiequery.Spec{},
		strategy.Options{Store: filepath.Join(t.TempDir(), "Cookies.binarycookies")})
	if err != nil {
		t.Fatalf("QueryCookies: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}
