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

// Package keychain retrieves browser master secrets from the OS keychain.
//
// Chromium-family browsers store the passphrase that keys their cookie
// encryption as a generic password under a browser-specific service name
// ("Chrome Safe Storage" and friends). The accessor is intentionally a
// single capability: look up the password for a service name.
//
// Callers are expected to fail soft: when the keychain is unavailable or
// the entry is missing, decryption proceeds with an empty secret and the
// plaintext value column is used where present.
package keychain

import "errors"

// ErrUnavailable is reported when no keychain is available on this
// platform, or the requested entry does not exist.
var ErrUnavailable = errors.New("keychain unavailable")

// Secret returns the generic password stored for the given service name.
// If the keychain cannot be consulted or holds no entry for the service,
// it reports ErrUnavailable.
func Secret(service string) (string, error) { return secret(service) }
