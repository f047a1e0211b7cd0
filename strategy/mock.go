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

	"github.com/creachadair/cookiequery"
)

// A Mock strategy serves a fixed list of records, applying the same
// name/domain matching rule as the real strategies. It exists for tests and
// for callers that want to feed synthetic records through the coordinator.
type Mock struct {
	Records []cookiequery.Cookie
}

// NewMock returns a strategy over the given fixed records.
func NewMock(records ...cookiequery.Cookie) *Mock { return &Mock{Records: records} }

// Name implements part of the Strategy interface.
func (m *Mock) Name() string { return "mock" }

// QueryCookies implements the Strategy interface.
func (m *Mock) QueryCookies(ctx context.Context, spec cookiequery.Spec, opts Options) ([]cookiequery.Cookie, error) {
	match, err := spec.Matcher()
	if err != nil {
		return nil, err
	}
	out := []cookiequery.Cookie{}
	for _, c := range m.Records {
		if !match.Match(c.Name, c.Domain) {
			continue
		}
		if c.Meta.Browser == cookiequery.Unknown {
			c.Meta.Browser = cookiequery.Internal
		}
		out = append(out, c)
	}
	return out, nil
}
