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

// Package strategy implements the per-browser cookie query strategies and
// their composition.
//
// A Strategy answers one operation: given a cookie spec, return the matching
// cookies from the stores it knows how to read, each tagged with its
// provenance. Concrete strategies exist for the Chromium family (one per
// browser variant), Firefox, and Safari, plus a Mock backed by fixed records
// and a Composite that fans a query out over a list of children.
//
// The error contract is uniform: a missing store yields no cookies and no
// error, a record that cannot be decoded is skipped with a warning, and a
// locked or unreadable store is logged and skipped. A strategy reports an
// error only for problems with the query itself, such as an invalid name
// pattern.
package strategy

import (
	"context"
	"sync"

	"github.com/creachadair/cookiequery"
)

// Options adjust how a strategy reads its stores.
type Options struct {
	// Store overrides profile discovery with a single store file.
	Store string

	// Force copies a store held locked by a running browser to a scratch
	// path and reads the copy, instead of skipping it.
	Force bool
}

// A Strategy answers cookie queries for some set of browser stores.
type Strategy interface {
	// Name returns the selector token for the strategy, e.g. "chrome".
	Name() string

	// QueryCookies returns the cookies matching spec across the strategy's
	// stores, in store enumeration order.
	QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error)
}

// storeWorkers bounds how many store files a strategy reads concurrently.
const storeWorkers = 4

// gather runs fn(i) for i in [0, n) on at most workers goroutines and waits
// for all of them. Results are communicated through the closure.
func gather(n, workers int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// flatten concatenates per-store results in enumeration order, returning an
// empty (non-nil) slice when nothing matched.
func flatten(parts [][]cookiequery.Cookie) []cookiequery.Cookie {
	out := []cookiequery.Cookie{}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
