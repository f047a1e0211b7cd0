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

// Package query coordinates cookie queries across browser strategies.
//
// The coordinator accepts one or more cookie specs, delegates each to the
// selected strategy in order, and accumulates the results, applying the
// global limit and expiry policy. It is the single entry point intended for
// application code:
//
//	cookies, err := query.Cookies(ctx, []cookiequery.Spec{{Name: "sid", Domain: "example.com"}}, query.Options{})
package query

import (
	"context"
	"time"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/strategy"
)

// Options adjust how a query runs. The zero value queries every supported
// browser with no limit and no expiry filtering.
type Options struct {
	// Limit caps the total number of records returned across all specs.
	// Zero or negative means no limit.
	Limit int

	// RemoveExpired drops records whose expiration is in the past. Records
	// that never expire are always kept.
	RemoveExpired bool

	// Store overrides profile discovery with a single store file.
	Store string

	// Force copies locked stores to a scratch path instead of skipping them.
	Force bool

	// Strategy selects which browsers to query. Nil queries all of them.
	Strategy strategy.Strategy
}

// Cookies returns the cookies matching the given specs, in spec order and,
// within a spec, in the order the strategy produced them. The result is
// never nil. An error is reported only for an invalid spec; per-browser and
// per-store failures degrade to fewer results, with diagnostics on the log.
func Cookies(ctx context.Context, specs []cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}

	st := opts.Strategy
	if st == nil {
		st = strategy.All()
	}
	sopts := strategy.Options{Store: opts.Store, Force: opts.Force}

	now := time.Now()
	out := []cookiequery.Cookie{}
	for _, spec := range specs {
		got, err := st.QueryCookies(ctx, spec, sopts)
		if err != nil {
			return nil, err
		}
		for _, c := range got {
			if opts.RemoveExpired && c.ExpiredAt(now) {
				continue
			}
			out = append(out, c)
			if opts.Limit > 0 && len(out) == opts.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// First returns the first cookie matching spec, or false if none match.
func First(ctx context.Context, spec cookiequery.Spec, opts Options) (cookiequery.Cookie, bool, error) {
	opts.Limit = 1
	cs, err := Cookies(ctx, []cookiequery.Spec{spec}, opts)
	if err != nil || len(cs) == 0 {
		return cookiequery.Cookie{}, false, err
	}
	return cs[0], true, nil
}
