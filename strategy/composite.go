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
	"log/slog"
	"strings"
	"time"

	"github.com/creachadair/cookiequery"
)

// DefaultTimeout bounds how long the composite waits for each child.
const DefaultTimeout = 10 * time.Second

// A Composite strategy fans a query out over an ordered list of children
// concurrently and concatenates their results in child order. A child that
// reports an error or outlives its timeout contributes nothing; the rest of
// the children are unaffected.
type Composite struct {
	Children []Strategy

	// Timeout bounds each child invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewComposite returns a composite over the given children, queried in the
// given order.
func NewComposite(children ...Strategy) *Composite {
	return &Composite{Children: children}
}

// Name implements part of the Strategy interface.
func (c *Composite) Name() string { return "composite" }

// QueryCookies implements the Strategy interface.
func (c *Composite) QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type result struct {
		cookies []cookiequery.Cookie
		err     error
	}
	deadline := time.Now().Add(timeout)
	results := make([]chan result, len(c.Children))
	for i, child := range c.Children {
		ch := make(chan result, 1)
		results[i] = ch
		go func(child Strategy) {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			cs, err := child.QueryCookies(cctx, spec, opts)
			ch <- result{cookies: cs, err: err}
		}(child)
	}

	out := []cookiequery.Cookie{}
	for i, ch := range results {
		name := c.Children[i].Name()
		select {
		case r := <-ch:
			if r.err != nil {
				slog.Warn("browser strategy failed", "strategy", name, "error", r.err)
				continue
			}
			out = append(out, r.cookies...)
		case <-time.After(time.Until(deadline)):
			// The child's goroutine keeps running but its eventual result
			// is discarded with its buffered channel.
			slog.Warn("browser strategy timed out", "strategy", name, "timeout", timeout)
		case <-ctx.Done():
			slog.Warn("query canceled", "strategy", name, "error", ctx.Err())
			return out, nil
		}
	}
	return out, nil
}

// For returns the strategy selected by a browser token, compared without
// regard to case, spaces, or dashes ("Opera GX" selects operagx). An empty
// or unrecognized token selects a composite of every supported strategy:
// the Chromium variants in declaration order, then Firefox, then Safari.
// Each call returns fresh instances.
func For(token string) Strategy {
	t := strings.ToLower(token)
	t = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(t)
	switch t {
	case "firefox":
		return NewFirefox()
	case "safari":
		return NewSafari()
	}
	for _, v := range Variants {
		if v.Name == t {
			return NewChromium(v)
		}
	}
	if t != "" {
		slog.Warn("unknown browser selector; querying all browsers", "selector", token)
	}
	return All()
}

// All returns a composite of every supported strategy in deterministic
// order.
func All() *Composite {
	var children []Strategy
	for _, v := range Variants {
		children = append(children, NewChromium(v))
	}
	children = append(children, NewFirefox(), NewSafari())
	return NewComposite(children...)
}
