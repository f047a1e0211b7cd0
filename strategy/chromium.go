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
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/chromedb"
	"github.com/creachadair/cookiequery/keychain"
	"github.com/creachadair/cookiequery/profiles"
)

// A Variant identifies one browser of the Chromium family: its selector
// token, the keychain service guarding its master secret, and the vendor
// path of its per-user data root.
type Variant struct {
	Name    string
	Service string
	Vendor  []string
}

// Variants enumerates the supported Chromium-family browsers, in the order
// the composite queries them.
var Variants = []Variant{
	{"chrome", "Chrome Safe Storage", []string{"Google", "Chrome"}},
	{"chromium", "Chromium Safe Storage", []string{"Chromium"}},
	{"edge", "Microsoft Edge Safe Storage", []string{"Microsoft Edge"}},
	{"arc", "Arc Safe Storage", []string{"Arc", "User Data"}},
	{"opera", "Opera Safe Storage", []string{"com.operasoftware.Opera"}},
	{"operagx", "Opera GX Safe Storage", []string{"com.operasoftware.OperaGX"}},
	{"brave", "Brave Safe Storage", []string{"BraveSoftware", "Brave-Browser"}},
}

// A Chromium strategy reads the cookie databases of one Chromium-family
// browser variant, decrypting values with the variant's keychain secret.
type Chromium struct {
	Variant Variant

	home string // discovery root override for testing
}

// NewChromium returns a strategy for the given browser variant.
func NewChromium(v Variant) *Chromium { return &Chromium{Variant: v} }

// Name implements part of the Strategy interface.
func (c *Chromium) Name() string { return c.Variant.Name }

// QueryCookies implements the Strategy interface.
func (c *Chromium) QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	stores := c.stores(opts)
	if len(stores) == 0 {
		return []cookiequery.Cookie{}, nil
	}

	// One keychain consultation covers every store of the variant. A
	// missing secret is not fatal: plaintext columns still read, and
	// encrypted values fall back to hex with decrypted=false.
	secret, err := keychain.Secret(c.Variant.Service)
	if err != nil {
		slog.Debug("no keychain secret", "browser", c.Variant.Name, "error", err)
		secret = ""
	}
	key := chromedb.EncryptionKey(secret, chromedb.DefaultIterations())

	namePat := cookiequery.SQLPattern(spec.Name, false)
	hostPat := cookiequery.SQLPattern(spec.Domain, true)

	parts := make([][]cookiequery.Cookie, len(stores))
	gather(len(stores), storeWorkers, func(i int) {
		parts[i] = c.readStore(stores[i], namePat, hostPat, key, opts.Force)
	})
	return flatten(parts), nil
}

func (c *Chromium) stores(opts Options) []string {
	if opts.Store != "" {
		return []string{opts.Store}
	}
	home := c.home
	if home == "" {
		home = profiles.Home()
	}
	root := profiles.ChromiumRoot(home, c.Variant.Vendor...)
	return profiles.Find(root, profiles.ChromiumStore)
}

func (c *Chromium) readStore(path, namePat, hostPat string, key []byte, force bool) []cookiequery.Cookie {
	s, err := chromedb.Open(path, &chromedb.Options{Force: force})
	if err != nil {
		slog.Warn("cannot open cookie database", "browser", c.Variant.Name, "path", path, "error", err)
		return nil
	}
	defer s.Close()

	rows, err := s.Query(namePat, hostPat)
	if err != nil {
		var lock *chromedb.LockError
		if errors.As(err, &lock) {
			slog.Warn("cookie database locked by a running browser",
				"browser", c.Variant.Name, "path", lock.Path)
		} else {
			slog.Warn("cookie query failed", "browser", c.Variant.Name, "path", path, "error", err)
		}
		return nil
	}

	out := make([]cookiequery.Cookie, 0, len(rows))
	for _, row := range rows {
		value, decrypted := decodeValue(key, row)
		out = append(out, cookiequery.Cookie{
			Name:    row.Name,
			Domain:  cookiequery.TrimDot(row.HostKey),
			Value:   value,
			Expires: row.Expires(),
			Meta: cookiequery.Meta{
				File:      path,
				Browser:   cookiequery.Chrome,
				Decrypted: decrypted,
				Secure:    row.Secure,
				HTTPOnly:  row.HTTPOnly,
				Path:      row.Path,
				Created:   row.Created(),
			},
		})
	}
	return out
}

// decodeValue resolves a row's value to text. Encrypted blobs are decrypted
// and must come out as UTF-8; anything that fails is rendered as hex of the
// stored bytes with decrypted=false so the record still surfaces.
func decodeValue(key []byte, row chromedb.Row) (string, bool) {
	if len(row.EncryptedValue) == 0 {
		return row.Value, false
	}
	dec, err := chromedb.DecryptValue(key, row.EncryptedValue)
	switch {
	case errors.Is(err, chromedb.ErrNotEncrypted):
		// No version prefix: the plaintext column is authoritative.
		return row.Value, false
	case err != nil:
		slog.Warn("cookie value decryption failed", "name", row.Name, "error", err)
		return hex.EncodeToString(row.EncryptedValue), false
	case !utf8.Valid(dec):
		slog.Warn("decrypted cookie value is not UTF-8", "name", row.Name)
		return hex.EncodeToString(row.EncryptedValue), false
	}
	return string(dec), true
}
