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

// Package profiles locates browser cookie stores on disk.
//
// Each browser family keeps one store per profile under a per-user root
// directory. The locator walks a root to a small bounded depth and collects
// every file with the family's store basename. Unreadable directories are
// skipped, and symlinks are not followed, so a store is only ever reported
// from inside its root.
package profiles

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// Store file basenames per browser family.
const (
	ChromiumStore = "Cookies"
	FirefoxStore  = "cookies.sqlite"
	SafariStore   = "Cookies.binarycookies"
)

// MaxDepth is how many directory levels below a root are searched. Chromium
// keeps stores at <root>/<profile>/Cookies or <root>/<profile>/Network/
// Cookies, and Firefox at <root>/<profile>/cookies.sqlite, so three levels
// reach every known layout.
const MaxDepth = 3

// Home returns the current user's home directory, or "" if it cannot be
// determined. A missing home directory is not an error for a locator; it
// just means there are no stores to find.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("no home directory", "error", err)
		return ""
	}
	return home
}

// Find returns every file under root, at most MaxDepth levels deep, whose
// basename equals basename. Symlinks are not followed. Directories that
// cannot be read are logged and skipped. Results are in lexical walk order.
func Find(root, basename string) []string {
	if root == "" {
		return nil
	}
	var out []string
	walk(root, basename, MaxDepth, &out)
	return out
}

func walk(dir, basename string, depth int, out *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("skipping unreadable directory", "dir", dir, "error", err)
		}
		return
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if depth > 1 {
				walk(path, basename, depth-1, out)
			}
			continue
		}
		if e.Name() == basename {
			*out = append(*out, path)
		}
	}
}

// ChromiumRoot returns the per-user data root for a Chromium-family browser
// given its vendor path segments (for example "Google", "Chrome"). On
// Windows the profiles live one level deeper, under "User Data".
func ChromiumRoot(home string, vendor ...string) string {
	if home == "" {
		return ""
	}
	root := filepath.Join(append([]string{appDataDir(home)}, vendor...)...)
	if runtime.GOOS == "windows" && (len(vendor) == 0 || vendor[len(vendor)-1] != "User Data") {
		root = filepath.Join(root, "User Data")
	}
	return root
}

// FirefoxRoot returns the per-user profiles root for Firefox.
func FirefoxRoot(home string) string {
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Mozilla", "Firefox", "Profiles")
	}
	return filepath.Join(home, ".mozilla", "firefox")
}

// SafariCookieFiles returns the candidate paths of Safari's binary cookie
// store: the sandboxed container location, then the pre-sandbox fallback.
// Only paths that exist are returned.
func SafariCookieFiles(home string) []string {
	if home == "" {
		return nil
	}
	candidates := []string{
		filepath.Join(home, "Library", "Containers", "com.apple.Safari",
			"Data", "Library", "Cookies", SafariStore),
		filepath.Join(home, "Library", "Cookies", SafariStore),
	}
	var out []string
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

func appDataDir(home string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support")
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir
		}
		return filepath.Join(home, "AppData", "Local")
	}
	return filepath.Join(home, ".config")
}
