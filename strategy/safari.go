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
	"encoding/hex"
	"log/slog"
	"unicode/utf8"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/bincookie"
	"github.com/creachadair/cookiequery/profiles"
)

// A Safari strategy decodes the user's Cookies.binarycookies stores.
// Matching happens in memory, since the binary container cannot be filtered
// at the source.
type Safari struct {
	home string // discovery root override for testing
}

// NewSafari returns a strategy over the user's Safari cookie stores.
func NewSafari() *Safari { return &Safari{} }

// Name implements part of the Strategy interface.
func (s *Safari) Name() string { return "safari" }

// QueryCookies implements the Strategy interface.
func (s *Safari) QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	m, err := spec.Matcher()
	if err != nil {
		return nil, err
	}

	stores := s.stores(opts)
	if len(stores) == 0 {
		return []cookiequery.Cookie{}, nil
	}

	parts := make([][]cookiequery.Cookie, len(stores))
	gather(len(stores), storeWorkers, func(i int) {
		parts[i] = readSafariStore(stores[i], m)
	})
	return flatten(parts), nil
}

func (s *Safari) stores(opts Options) []string {
	if opts.Store != "" {
		return []string{opts.Store}
	}
	home := s.home
	if home == "" {
		home = profiles.Home()
	}
	return profiles.SafariCookieFiles(home)
}

func readSafariStore(path string, m *cookiequery.Matcher) []cookiequery.Cookie {
	store, err := bincookie.Open(path)
	if err != nil {
		slog.Warn("cannot read binary cookie file", "browser", "safari", "path", path, "error", err)
		return nil
	}

	var out []cookiequery.Cookie
	for _, c := range store.Cookies() {
		if !m.Match(c.Name, c.URL) {
			continue
		}
		value, ok := textValue(c.Value)
		if !ok {
			slog.Warn("cookie value is not UTF-8", "name", c.Name, "path", path)
		}
		out = append(out, cookiequery.Cookie{
			Name:    c.Name,
			Domain:  cookiequery.TrimDot(c.URL),
			Value:   value,
			Expires: c.Expires,
			Meta: cookiequery.Meta{
				File:       path,
				Browser:    cookiequery.Safari,
				Secure:     c.Secure(),
				HTTPOnly:   c.HTTPOnly(),
				Path:       c.Path,
				Version:    int(c.Version),
				Port:       c.Port,
				Comment:    c.Comment,
				CommentURL: c.CommentURL,
				Created:    c.Created,
			},
		})
	}
	return out
}

// textValue renders raw value bytes as text: UTF-8 verbatim, anything else
// as hex.
func textValue(b []byte) (string, bool) {
	if utf8.Valid(b) {
		return string(b), true
	}
	return hex.EncodeToString(b), false
}
