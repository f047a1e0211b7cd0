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

// Package cookiequery extracts cookies from the on-disk stores of locally
// installed web browsers.
//
// A caller describes the cookies it wants with a Spec, a name pattern and a
// domain pattern, and receives every matching cookie across the installed
// browsers as a uniform Cookie record with provenance attached. The
// browser-specific machinery lives in the subpackages: bincookie decodes
// Safari's binary container, chromedb and firefox read the SQLite stores,
// strategy fans a query out across browsers, and query coordinates the whole
// exchange.
package cookiequery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Wildcard is the pattern that matches every name or domain. The asterisk
// form "*" is accepted as an alias everywhere a pattern appears, and an
// empty field is coerced to the wildcard at the query boundary.
const Wildcard = "%"

// A Spec describes the cookies a query should return: a name pattern and a
// domain pattern. Either field may be the wildcard.
type Spec struct {
	Name   string
	Domain string
}

// Normalized returns a copy of s with empty fields and "*" coerced to the
// canonical wildcard.
func (s Spec) Normalized() Spec {
	if s.Name == "" || s.Name == "*" {
		s.Name = Wildcard
	}
	if s.Domain == "" || s.Domain == "*" {
		s.Domain = Wildcard
	}
	return s
}

// Matcher returns a compiled matcher for s. It reports an error only if the
// name pattern is syntactically invalid.
func (s Spec) Matcher() (*Matcher, error) {
	s = s.Normalized()
	m := &Matcher{
		nameAll:   s.Name == Wildcard,
		domainAll: s.Domain == Wildcard,
		domain:    TrimDot(s.Domain),
	}
	if !m.nameAll {
		g, err := glob.Compile(strings.ReplaceAll(s.Name, Wildcard, "*"))
		if err != nil {
			return nil, fmt.Errorf("invalid name pattern %q: %w", s.Name, err)
		}
		m.name = g
	}
	return m, nil
}

// A Matcher applies the uniform matching rule to stored cookies read from a
// store that cannot be filtered at the source (Safari files, mock records).
// Name patterns support the "%" and "*" wildcards; domain matching strips a
// single leading dot from both sides and then requires the stored domain to
// contain the queried domain as a substring.
type Matcher struct {
	nameAll   bool
	name      glob.Glob
	domainAll bool
	domain    string
}

// MatchName reports whether name matches the spec's name pattern.
func (m *Matcher) MatchName(name string) bool {
	return m.nameAll || m.name.Match(name)
}

// MatchDomain reports whether a stored domain matches the spec's domain.
func (m *Matcher) MatchDomain(domain string) bool {
	return m.domainAll || strings.Contains(TrimDot(domain), m.domain)
}

// Match reports whether a cookie with the given name and domain matches.
func (m *Matcher) Match(name, domain string) bool {
	return m.MatchName(name) && m.MatchDomain(domain)
}

// SQLPattern maps a spec field to the SQL LIKE pattern that implements the
// same rule inside a store query. An empty field or "*" becomes "%", and any
// embedded asterisks become "%". A domain with no wildcard of its own loses
// one leading dot and is wrapped in "%" so the stored value is
// substring-matched; a domain that already contains a wildcard is used as is.
func SQLPattern(field string, substring bool) string {
	if field == "" || field == "*" || field == Wildcard {
		return Wildcard
	}
	p := strings.ReplaceAll(field, "*", Wildcard)
	if substring && !strings.Contains(p, Wildcard) {
		p = Wildcard + strings.TrimPrefix(p, ".") + Wildcard
	}
	return p
}

// TrimDot removes a single leading dot from a cookie domain. Stores record
// host-wide cookies with a "." prefix; output records and domain matching
// both use the stripped form.
func TrimDot(domain string) string { return strings.TrimPrefix(domain, ".") }

// A Browser tags the family of browser a cookie record came from.
type Browser int

// Enumerators for browser families.
const (
	Unknown  Browser = iota // provenance not recorded
	Chrome                  // any Chromium-family browser
	Firefox                 // Firefox-family
	Safari                  // Safari binary cookie stores
	Internal                // produced by the library itself (mocks, tests)
)

var browserStrings = [...]string{"unknown", "Chrome", "Firefox", "Safari", "internal"}

func (b Browser) String() string {
	if b < 0 || int(b) >= len(browserStrings) {
		return browserStrings[0]
	}
	return browserStrings[b]
}

// A Cookie is the uniform record a query produces. Values are always text:
// binary payloads are decoded before they get here, or the failure is
// recorded in Meta and the raw bytes rendered as hex.
type Cookie struct {
	Name   string
	Domain string // leading dot stripped
	Value  string

	// Expires is the cookie's expiration instant. The zero time means the
	// cookie never expires (a session cookie, or a store that recorded no
	// expiration).
	Expires time.Time

	Meta Meta
}

// ExpiredAt reports whether c is expired at the given instant. A cookie with
// no expiration never expires.
func (c Cookie) ExpiredAt(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// Meta carries the provenance and per-store attributes of a cookie.
type Meta struct {
	File      string  // path of the store the cookie was read from
	Browser   Browser // the family of that store
	Decrypted bool    // whether the value was decrypted successfully

	Secure   bool
	HTTPOnly bool
	Path     string

	Version    int    // bincookie record version, if any
	Port       uint16 // bincookie port restriction, 0 if none
	Comment    string
	CommentURL string

	Created time.Time // zero if the store recorded no creation time
}

// ErrInvalidSpec is reported for a spec whose fields cannot form a query.
var ErrInvalidSpec = errors.New("invalid cookie spec")

// Validate checks that s can be executed as a query after normalization.
func (s Spec) Validate() error {
	if _, err := s.Matcher(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}
