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
	"errors"
	"log/slog"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/firefox"
	"github.com/creachadair/cookiequery/profiles"
)

// A Firefox strategy reads the cookies.sqlite databases of the Firefox
// profiles under the user's Firefox root. Values are stored in plaintext,
// so no decryption occurs and records carry Decrypted=false.
type Firefox struct {
	home string // discovery root override for testing
}

// NewFirefox returns a strategy over the user's Firefox profiles.
func NewFirefox() *Firefox { return &Firefox{} }

// Name implements part of the Strategy interface.
func (f *Firefox) Name() string { return "firefox" }

// QueryCookies implements the Strategy interface.
func (f *Firefox) QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	stores := f.stores(opts)
	if len(stores) == 0 {
		return []cookiequery.Cookie{}, nil
	}

	namePat := cookiequery.SQLPattern(spec.Name, false)
	hostPat := cookiequery.SQLPattern(spec.Domain, true)

	parts := make([][]cookiequery.Cookie, len(stores))
	gather(len(stores), storeWorkers, func(i int) {
		parts[i] = readFirefoxStore(stores[i], namePat, hostPat, opts.Force)
	})
	return flatten(parts), nil
}

func (f *Firefox) stores(opts Options) []string {
	if opts.Store != "" {
		return []string{opts.Store}
	}
	home := f.home
	if home == "" {
		home = profiles.Home()
	}
	return profiles.Find(profiles.FirefoxRoot(home), profiles.FirefoxStore)
}

func readFirefoxStore(path, namePat, hostPat string, force bool) []cookiequery.Cookie {
	s, err := firefox.Open(path, &firefox.Options{Force: force})
	if err != nil {
		slog.Warn("cannot open cookie database", "browser", "firefox", "path", path, "error", err)
		return nil
	}
	defer s.Close()

	rows, err := s.Query(namePat, hostPat)
	if err != nil {
		var lock *firefox.LockError
		if errors.As(err, &lock) {
			slog.Warn("cookie database locked by a running browser",
				"browser", "firefox", "path", lock.Path)
		} else {
			slog.Warn("cookie query failed", "browser", "firefox", "path", path, "error", err)
		}
		return nil
	}

	out := make([]cookiequery.Cookie, 0, len(rows))
	for _, row := range rows {
		out = append(out, cookiequery.Cookie{
			Name:    row.Name,
			Domain:  cookiequery.TrimDot(row.Host),
			Value:   row.Value,
			Expires: row.Expires(),
			Meta: cookiequery.Meta{
				File:     path,
				Browser:  cookiequery.Firefox,
				Secure:   row.Secure,
				HTTPOnly: row.HTTPOnly,
				Path:     row.Path,
				Created:  row.Created(),
			},
		})
	}
	return out
}
