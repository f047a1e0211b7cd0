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

// Program getcookies queries the cookies of locally installed browsers.
//
// A query names a cookie and a domain, either directly or derived from a
// URL, and fans out across every supported browser unless one is selected.
// Examples:
//
//	getcookies --name sid --domain example.com
//	getcookies --url https://mail.example.com --browser chrome --output json
//	getcookies -n '%' -d example.com --remove-expired
//
// An optional .env file in the working directory is loaded before flags are
// read; GETCOOKIES_BROWSER and GETCOOKIES_OUTPUT set defaults for the
// corresponding flags.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/creachadair/cookiequery"
	"github.com/creachadair/cookiequery/query"
	"github.com/creachadair/cookiequery/strategy"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var opts struct {
	name          string
	domain        string
	url           string
	browser       string
	store         string
	force         bool
	limit         int
	removeExpired bool
	output        string
	verbose       bool
}

func main() {
	// A .env in the working directory can supply defaults; its absence is
	// not an error.
	godotenv.Load()

	root := &cobra.Command{
		Use:   "getcookies",
		Short: "Query cookies from installed browsers",
		Long: `Query cookies from the stores of locally installed browsers.

Cookies are matched by a name pattern and a domain pattern; "%" and "*"
are wildcards. Without --browser, every supported browser is queried.`,
		SilenceUsage: true,
		RunE:         run,
	}
	fs := root.Flags()
	fs.StringVarP(&opts.name, "name", "n", "%", "Cookie name pattern")
	fs.StringVarP(&opts.domain, "domain", "d", "%", "Cookie domain pattern")
	fs.StringVarP(&opts.url, "url", "u", "", "Derive the domain from a URL (overrides --domain)")
	fs.StringVarP(&opts.browser, "browser", "b", envDefault("GETCOOKIES_BROWSER", ""),
		"Browser to query (chrome, chromium, edge, arc, opera, operagx, brave, firefox, safari)")
	fs.StringVar(&opts.store, "store", "", "Read a single cookie store file instead of discovering profiles")
	fs.BoolVarP(&opts.force, "force", "f", false, "Copy locked cookie stores instead of skipping them")
	fs.IntVarP(&opts.limit, "limit", "l", 0, "Stop after this many cookies (0 = no limit)")
	fs.BoolVarP(&opts.removeExpired, "remove-expired", "r", false, "Drop expired cookies from the output")
	fs.StringVarP(&opts.output, "output", "o", envDefault("GETCOOKIES_OUTPUT", "text"),
		"Output format: text, grouped, or json")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	spec := cookiequery.Spec{Name: opts.name, Domain: opts.domain}
	if opts.url != "" {
		domain, err := domainFromURL(opts.url)
		if err != nil {
			return err
		}
		spec.Domain = domain
	}

	cookies, err := query.Cookies(cmd.Context(), []cookiequery.Spec{spec}, query.Options{
		Limit:         opts.limit,
		RemoveExpired: opts.removeExpired,
		Store:         opts.store,
		Force:         opts.force,
		Strategy:      strategy.For(opts.browser),
	})
	if err != nil {
		return err
	}

	switch opts.output {
	case "json":
		return renderJSON(cookies)
	case "grouped":
		renderGrouped(cookies)
	case "text":
		renderText(cookies)
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	return nil
}

// domainFromURL extracts the host of a URL for use as a domain pattern. A
// bare host without a scheme is accepted.
func domainFromURL(s string) (string, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot derive a domain from %q", s)
	}
	return u.Hostname(), nil
}

// jsonCookie is the exported rendering of a cookie record.
type jsonCookie struct {
	Name    string    `json:"name"`
	Domain  string    `json:"domain"`
	Value   string    `json:"value"`
	Expires *jsonTime `json:"expires,omitempty"` // null/absent means "never"
	Meta    jsonMeta  `json:"meta"`
}

type jsonTime time.Time

func (t jsonTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

type jsonMeta struct {
	File       string `json:"file"`
	Browser    string `json:"browser"`
	Decrypted  bool   `json:"decrypted"`
	Secure     bool   `json:"secure"`
	HTTPOnly   bool   `json:"httpOnly"`
	Path       string `json:"path,omitempty"`
	Version    int    `json:"version,omitempty"`
	Port       uint16 `json:"port,omitempty"`
	Comment    string `json:"comment,omitempty"`
	CommentURL string `json:"commentURL,omitempty"`
	Creation   int64  `json:"creation,omitempty"` // milliseconds since the Unix epoch
}

func renderJSON(cookies []cookiequery.Cookie) error {
	out := make([]jsonCookie, 0, len(cookies))
	for _, c := range cookies {
		jc := jsonCookie{
			Name:   c.Name,
			Domain: c.Domain,
			Value:  c.Value,
			Meta: jsonMeta{
				File:       c.Meta.File,
				Browser:    c.Meta.Browser.String(),
				Decrypted:  c.Meta.Decrypted,
				Secure:     c.Meta.Secure,
				HTTPOnly:   c.Meta.HTTPOnly,
				Path:       c.Meta.Path,
				Version:    c.Meta.Version,
				Port:       c.Meta.Port,
				Comment:    c.Meta.Comment,
				CommentURL: c.Meta.CommentURL,
			},
		}
		if !c.Expires.IsZero() {
			t := jsonTime(c.Expires)
			jc.Expires = &t
		}
		if !c.Meta.Created.IsZero() {
			jc.Meta.Creation = c.Meta.Created.UnixMilli()
		}
		out = append(out, jc)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderText(cookies []cookiequery.Cookie) {
	tw := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	defer tw.Flush()
	for _, c := range cookies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Meta.Browser, c.Domain, c.Name, trimValue(c.Value))
	}
}

func renderGrouped(cookies []cookiequery.Cookie) {
	byFile := make(map[string][]cookiequery.Cookie)
	var files []string
	for _, c := range cookies {
		if _, ok := byFile[c.Meta.File]; !ok {
			files = append(files, c.Meta.File)
		}
		byFile[c.Meta.File] = append(byFile[c.Meta.File], c)
	}
	sort.Strings(files)

	tw := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	defer tw.Flush()
	for _, file := range files {
		fmt.Fprintf(tw, "%s:\n", file)
		for _, c := range byFile[file] {
			expires := "never"
			if !c.Expires.IsZero() {
				expires = c.Expires.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\texpires %s\n", c.Domain, c.Name, trimValue(c.Value), expires)
		}
	}
}

func trimValue(s string) string {
	if len(s) < 70 {
		return s
	}
	return s[:60] + fmt.Sprintf("[...%d more]", len(s)-60)
}
