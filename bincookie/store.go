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

package bincookie

import (
	"io"
	"os"

	"github.com/creachadair/atomicfile"
)

// Open reads and parses the bincookie file at path.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return &Store{
		Path: path,
		File: f,
	}, nil
}

// A Store is a bincookie file together with the path it was read from.
type Store struct {
	Path string
	File *File
}

// Cookies returns the cookies of all pages in page order.
func (s *Store) Cookies() []*Cookie {
	var out []*Cookie
	for _, page := range s.File.Pages {
		out = append(out, page.Cookies...)
	}
	return out
}

// WriteTo encodes the file associated with s in binary format to w.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	return s.File.WriteTo(w)
}

// Commit rewrites the file at the store's path with its current contents.
// The write is atomic: a partial failure leaves the original file intact.
func (s *Store) Commit() error {
	f, err := atomicfile.New(s.Path, 0600)
	if err != nil {
		return err
	}
	defer f.Cancel()
	if _, err := s.File.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}
