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

// Package bincookie reads and writes Apple binary cookie files.
//
// Safari and other applications using the NSHTTPCookieStorage API persist
// cookies in .binarycookies files, a packed binary container of pages of
// cookie records. This package decodes the full container into typed records
// and can encode a set of records back into the same layout.
//
// To parse a file:
//
//	f, err := bincookie.ParseFile(fileData)
//
// Decoding is resilient by design: a malformed cookie record is skipped, a
// malformed page is skipped, and only a bad magic number or a truncated
// header fails the whole file. Skipped records and diagnostic mismatches
// (checksum, footer) are reported through log/slog.
//
// # File format
//
// The binary file format has the following structure:
//
//	 Bytes | Format     | Description
//	-------|------------|----------------------------------------------
//	 4     | text       | magic number ('cook')
//	 4     | uint32 BE  | page count (np)
//	*4 [i] | uint32 BE  | page i data size, bytes; *repeat np times
//	*S [i] | bytes      | page i contents; *repeat np times
//	 4     | uint32 BE  | checksum (see below)
//	 8     | uint64 BE  | footer; two known encodings (see below)
//	 rest  | bytes      | binary NSHTTPCookieAcceptPolicy property list
//
// Each page has the following format:
//
//	 Bytes | Format     | Description
//	-------|------------|----------------------------------------------
//	 4     | uint32 BE  | page header (value 0x00000100)
//	 4     | uint32 LE  | cookie count (nc)
//	*4 [i] | uint32 LE  | cookie i offset from page start; *repeat nc times
//	 4     | uint32 BE  | page footer (value 0)
//	 ...   | bytes      | cookie records
//
// Each cookie record is little-endian throughout, with all string offsets
// relative to the start of the record:
//
//	 Offset | Bytes | Description
//	--------|-------|----------------------------------------------
//	 0      | 4     | record size, bytes, including this field (>= 48)
//	 4      | 4     | version
//	 8      | 4     | flag bitmap (1=secure, 4=httpOnly)
//	 12     | 4     | has_port (1 if a port follows the timestamps)
//	 16     | 4     | offset of URL (domain) string
//	 20     | 4     | offset of name string
//	 24     | 4     | offset of path string
//	 28     | 4     | offset of value bytes
//	 32     | 4     | offset of comment string
//	 36     | 4     | offset of comment URL string
//	 40     | 8     | expires; float64 seconds since 01-Jan-2001 UTC
//	 48     | 8     | created; float64 seconds since 01-Jan-2001 UTC
//	 56     | 2     | port (present only when has_port != 0)
//
// An offset of zero means the field is not present. Each string extends to
// its NUL terminator or to the next declared offset, whichever comes first.
//
// # Footer
//
// Two footer encodings occur in the wild: files written before Safari 14
// carry 0x071720050000004b, later files carry 0x28 in the high 32 bits and
// zero in the low. Both are accepted; an unrecognized footer is logged and
// otherwise ignored, since the payload before it decodes the same way.
//
// # Checksum
//
// The checksum of a page is the integer sum of the bytes at offsets that are
// multiples of 4 (0, 4, 8, ...). The checksum of the file is the sum of the
// page checksums. A mismatch is diagnostic only.
package bincookie

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/creachadair/cookiequery/binreader"
)

const (
	macEpoch  = 978307200 // 01-Jan-2001 UTC, in Unix seconds
	fileMagic = "cook"

	pageHeader = 0x00000100

	// FooterLegacy is the file footer written before Safari 14.
	FooterLegacy = 0x071720050000004b
	// FooterModern is the file footer written by Safari 14 and later.
	FooterModern = 0x28 << 32

	// maxMacSeconds bounds a plausible Mac-epoch timestamp. Values outside
	// [0, maxMacSeconds] are treated as corruption and replaced with zero.
	maxMacSeconds = 1e9

	// minRecordSize is the smallest record size accepted: the fixed header
	// through the expiration time. A record must also hold the creation time
	// (bytes 48-55) to decode.
	minRecordSize = 48

	// DefaultPolicy is the cookie accept policy property list written for a
	// *File that does not carry one. It is the binary property list encoding
	// of NSHTTPCookieAcceptPolicy: 2 (OnlyFromMainDocumentDomain).
	DefaultPolicy = "bplist00\xd1\x01\x02_\x10\x18NSHTTPCookieAcceptPolicy\x10" +
		"\x02\x08\x0b&\x00\x00\x00\x00\x00\x00\x01\x01\x00\x00\x00\x00\x00\x00" +
		"\x00\x03\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00("
)

// Constants for the flags bitmap.
const (
	FlagSecure    = 0x01 // only send on an encrypted connection
	FlagHTTPOnly  = 0x04 // do not expose to scripts
	FlagReserved1 = 0x08 // reserved; meaning unknown
	FlagReserved2 = 0x10 // reserved; meaning unknown
)

// A File represents the complete contents of a binary cookie file.
type File struct {
	Pages []*Page

	// The checksum of the file. When reading, this is populated from the
	// stored value in the input. Writing the File recomputes it.
	Checksum uint32

	// Footer is the 8-byte file footer as read, or FooterModern for a File
	// constructed from scratch. Writing always emits FooterModern.
	Footer uint64

	// The cookie acceptance policy, as a binary-format property list. The
	// bytes are carried opaquely. If empty, DefaultPolicy is written.
	Policy []byte
}

// A Page is a collection of cookie records.
type Page struct {
	Cookies []*Cookie
}

// A Cookie is a single decoded cookie record. The Value is kept as raw
// bytes; interpreting it as text is the caller's concern.
type Cookie struct {
	Version uint32
	Flags   uint32

	URL        string // the cookie domain, possibly with a leading dot
	Name       string
	Path       string
	Value      []byte
	Comment    string
	CommentURL string
	Port       uint16 // 0 if the record carries no port

	Expires time.Time // zero for a session cookie
	Created time.Time // zero if not recorded
}

// Secure reports whether the Secure flag is set.
func (c *Cookie) Secure() bool { return c.Flags&FlagSecure != 0 }

// HTTPOnly reports whether the HTTPOnly flag is set.
func (c *Cookie) HTTPOnly() bool { return c.Flags&FlagHTTPOnly != 0 }

// Reserved returns the two reserved flag bits. They are surfaced only for
// diagnostic dumps.
func (c *Cookie) Reserved() (bit8, bit16 bool) {
	return c.Flags&FlagReserved1 != 0, c.Flags&FlagReserved2 != 0
}

// ParseFile parses the binary contents of a bincookie file.
//
// Structural damage below the file level is recovered in place: a cookie
// record that cannot be decoded is dropped, and a page whose framing is
// invalid is dropped with all its records. ParseFile reports an error only
// when data cannot be a bincookie file at all.
func ParseFile(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, errors.New("truncated file header")
	}
	if !bytes.HasPrefix(data, []byte(fileMagic)) {
		return nil, errors.New("invalid file magic")
	}
	r := binreader.New(data)
	r.Seek(4)

	numPages, err := r.Uint32BE()
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if int(numPages) > r.Remaining()/4 {
		return nil, fmt.Errorf("implausible page count %d", numPages)
	}
	sizes := make([]int, 0, numPages)
	var total int
	for i := 0; i < int(numPages); i++ {
		size, err := r.Uint32BE()
		if err != nil {
			return nil, fmt.Errorf("page %d size: %w", i+1, err)
		}
		sizes = append(sizes, int(size))
		total += int(size)
	}
	if err := r.Ensure(total); err != nil {
		return nil, fmt.Errorf("page data: %w", err)
	}

	f := &File{Footer: FooterModern}
	for i, size := range sizes {
		pr, err := r.Window(r.Offset(), size)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		r.Seek(r.Offset() + size)
		page, err := parsePage(pr)
		if err != nil {
			slog.Warn("skipping malformed cookie page", "page", i+1, "error", err)
			continue
		}
		f.Pages = append(f.Pages, page)
	}

	// The trailing fields are diagnostic: their absence or corruption does
	// not invalidate the cookie data already decoded.
	fcheck, err := r.Uint32BE()
	if err != nil {
		slog.Warn("missing file checksum", "error", err)
		return f, nil
	}
	f.Checksum = fcheck
	if sum := checksum(data, sizes); sum != fcheck {
		slog.Warn("file checksum mismatch", "stored", fcheck, "computed", sum)
	}

	footer, err := r.Uint64BE()
	if err != nil {
		slog.Warn("missing file footer", "error", err)
		return f, nil
	}
	f.Footer = footer
	if footer != FooterLegacy && footer != FooterModern {
		slog.Warn("unrecognized file footer", "footer", fmt.Sprintf("%#016x", footer))
	}

	// Whatever follows the footer is the accept-policy property list,
	// carried opaquely.
	if n := r.Remaining(); n != 0 {
		rest, _ := r.Bytes(n)
		f.Policy = rest
	}
	return f, nil
}

// checksum computes the file checksum over the encoded pages, given the page
// sizes from the header.
func checksum(data []byte, sizes []int) uint32 {
	var sum uint32
	cur := 8 + 4*len(sizes)
	for _, size := range sizes {
		sum += pageChecksum(data[cur : cur+size])
		cur += size
	}
	return sum
}

func parsePage(r *binreader.Reader) (*Page, error) {
	header, err := r.Uint32BE()
	if err != nil {
		return nil, err
	}
	if header != pageHeader {
		return nil, fmt.Errorf("invalid page header %#08x", header)
	}
	count, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Remaining()/4 {
		return nil, fmt.Errorf("cookie count %d overruns the page", count)
	}
	offsets := make([]int, 0, count)
	for i := 0; i < int(count); i++ {
		off, err := r.Uint32LE()
		if err != nil {
			return nil, fmt.Errorf("cookie %d offset: %w", i+1, err)
		}
		offsets = append(offsets, int(off))
	}
	if footer, err := r.Uint32BE(); err != nil || footer != 0 {
		return nil, errors.New("invalid page footer")
	}

	page := new(Page)
	for i, off := range offsets {
		c, err := parseCookieAt(r, off)
		if err != nil {
			slog.Warn("skipping malformed cookie record", "cookie", i+1, "error", err)
			continue
		}
		page.Cookies = append(page.Cookies, c)
	}
	return page, nil
}

// parseCookieAt decodes the cookie record at the given offset from the start
// of the page.
func parseCookieAt(page *binreader.Reader, off int) (*Cookie, error) {
	hdr, err := page.Window(off, 4)
	if err != nil {
		return nil, err
	}
	size32, err := hdr.Uint32LE()
	if err != nil {
		return nil, err
	}
	size := int(size32)
	if size < minRecordSize {
		return nil, fmt.Errorf("record size %d below minimum %d", size, minRecordSize)
	}
	r, err := page.Window(off, size) // fails if the record overflows the page
	if err != nil {
		return nil, err
	}

	r.Seek(4)
	version, err := r.Uint32LE()
	if err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}
	flags, err := r.Uint32LE()
	if err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	hasPort, err := r.Uint32LE()
	if err != nil {
		return nil, fmt.Errorf("invalid port marker: %w", err)
	}

	var offs [6]int // url, name, path, value, comment, commentURL
	for i := range offs {
		v, err := r.Uint32LE()
		if err != nil {
			return nil, fmt.Errorf("invalid string offset: %w", err)
		}
		offs[i] = int(v)
	}
	expires, err := r.Float64LE()
	if err != nil {
		return nil, fmt.Errorf("invalid expiration time: %w", err)
	}
	created, err := r.Float64LE()
	if err != nil {
		return nil, fmt.Errorf("invalid creation time: %w", err)
	}

	c := &Cookie{
		Version: version,
		Flags:   flags,
		Expires: macTime(expires),
		Created: macTime(created),
	}
	if hasPort != 0 {
		port, err := r.Uint16LE()
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		c.Port = port
	}

	// Each field extends from its offset to its NUL or to the next declared
	// offset, whichever comes first. A zero offset means "not present".
	ends := fieldEnds(offs, size)
	read := func(i int) (string, error) {
		if offs[i] == 0 {
			return "", nil
		}
		w, err := r.Window(offs[i], ends[i]-offs[i])
		if err != nil {
			return "", err
		}
		return w.NulString(-1)
	}
	if c.URL, err = read(0); err != nil {
		return nil, fmt.Errorf("invalid URL string: %w", err)
	}
	if c.Name, err = read(1); err != nil {
		return nil, fmt.Errorf("invalid name string: %w", err)
	}
	if c.Path, err = read(2); err != nil {
		return nil, fmt.Errorf("invalid path string: %w", err)
	}
	if offs[3] != 0 {
		w, err := r.Window(offs[3], ends[3]-offs[3])
		if err != nil {
			return nil, fmt.Errorf("invalid value bytes: %w", err)
		}
		c.Value = append([]byte(nil), w.NulBytes(-1)...)
	}
	if c.Comment, err = read(4); err != nil {
		return nil, fmt.Errorf("invalid comment string: %w", err)
	}
	if c.CommentURL, err = read(5); err != nil {
		return nil, fmt.Errorf("invalid comment URL string: %w", err)
	}
	return c, nil
}

// fieldEnds computes, for each declared field offset, where its extent ends:
// the next greater declared offset, or the end of the record.
func fieldEnds(offs [6]int, size int) [6]int {
	sorted := append([]int(nil), offs[:]...)
	sort.Ints(sorted)
	var ends [6]int
	for i, off := range offs {
		if off == 0 {
			continue
		}
		end := size
		for _, s := range sorted {
			if s > off && s < end {
				end = s
				break
			}
		}
		ends[i] = end
	}
	return ends
}

// macTime converts a Mac-epoch seconds value to a time. A stored zero is a
// session cookie and maps to the zero time. Values outside the plausible
// range are treated as corruption, logged, and also mapped to zero.
func macTime(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	if sec < 0 || sec > maxMacSeconds || math.IsNaN(sec) {
		slog.Warn("implausible Mac-epoch timestamp", "seconds", sec)
		return time.Time{}
	}
	return time.Unix(int64(sec)+macEpoch, 0).In(time.UTC)
}

// macSeconds is the inverse of macTime for encoding.
func macSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix() - macEpoch)
}

// fixPages repacks the contents of f to remove any pages without cookies.
func (f *File) fixPages() {
	var pages []*Page
	for _, page := range f.Pages {
		if len(page.Cookies) != 0 {
			pages = append(pages, page)
		}
	}
	f.Pages = pages
}

// WriteTo encodes f in binary format to w, recomputing the checksum and
// emitting the modern footer.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	f.fixPages()

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	writeBig32(&buf, uint32(len(f.Pages)))
	pos := buf.Len()                       // position of next length
	addPadding(&buf, "xxxx", len(f.Pages)) // length placeholders

	var sum uint32
	for _, page := range f.Pages {
		nw, err := page.WriteTo(&buf)
		if err != nil {
			return 0, err
		}
		data := buf.Bytes()
		sum += pageChecksum(data[len(data)-int(nw):])
		binary.BigEndian.PutUint32(data[pos:], uint32(nw)) // update length
		pos += 4
	}

	f.Checksum = sum
	f.Footer = FooterModern
	writeBig32(&buf, sum)
	writeBig64(&buf, FooterModern)

	p := f.Policy
	if len(p) == 0 {
		p = []byte(DefaultPolicy)
	}
	buf.Write(p)
	return io.Copy(w, &buf)
}

// WriteTo encodes p in binary format to w.
func (p *Page) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeBig32(&buf, pageHeader)
	writeLittle32(&buf, uint32(len(p.Cookies)))
	pos := buf.Len()                         // position of next offset
	addPadding(&buf, "xxxx", len(p.Cookies)) // offset placeholders
	writeBig32(&buf, 0)                      // page footer

	for _, cookie := range p.Cookies {
		data := buf.Bytes()
		binary.LittleEndian.PutUint32(data[pos:], uint32(buf.Len()))
		pos += 4
		if _, err := cookie.WriteTo(&buf); err != nil {
			return 0, err
		}
	}
	return io.Copy(w, &buf)
}

// WriteTo encodes c in binary format to w.
func (c *Cookie) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeLittle32(&buf, 0) // size placeholder
	writeLittle32(&buf, c.Version)
	writeLittle32(&buf, c.Flags)
	if c.Port != 0 {
		writeLittle32(&buf, 1)
	} else {
		writeLittle32(&buf, 0)
	}
	pos := buf.Len()            // position of next field offset
	addPadding(&buf, "xxxx", 6) // url, name, path, value, comment, commentURL
	writeFloat64(&buf, macSeconds(c.Expires))
	writeFloat64(&buf, macSeconds(c.Created))
	if c.Port != 0 {
		var pb [2]byte
		binary.LittleEndian.PutUint16(pb[:], c.Port)
		buf.Write(pb[:])
	}

	// Field payloads are packed in declaration order. Absent optional
	// fields keep a zero offset.
	put := func(data []byte, optional bool) {
		if optional && len(data) == 0 {
			pos += 4
			return
		}
		binary.LittleEndian.PutUint32(buf.Bytes()[pos:], uint32(buf.Len()))
		pos += 4
		buf.Write(data)
		buf.WriteByte(0)
	}
	put([]byte(c.URL), false)
	put([]byte(c.Name), false)
	put([]byte(c.Path), false)
	put(c.Value, false)
	put([]byte(c.Comment), true)
	put([]byte(c.CommentURL), true)

	binary.LittleEndian.PutUint32(buf.Bytes(), uint32(buf.Len()))
	return io.Copy(w, &buf)
}

// pageChecksum computes the checksum of a binary encoded page value.
func pageChecksum(data []byte) (sum uint32) {
	for i := 0; i < len(data); i += 4 {
		sum += uint32(data[i])
	}
	return
}

// writeBig32 writes u in big-endian order to w.
func writeBig32(w io.Writer, u uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], u)
	w.Write(buf[:])
}

// writeBig64 writes u in big-endian order to w.
func writeBig64(w io.Writer, u uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	w.Write(buf[:])
}

// writeLittle32 writes u in little-endian order to w.
func writeLittle32(w io.Writer, u uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], u)
	w.Write(buf[:])
}

// writeFloat64 writes f as binary in little-endian order to w.
func writeFloat64(w io.Writer, f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	w.Write(buf[:])
}

// addPadding extends buf with n copies of s.
func addPadding(buf *bytes.Buffer, s string, n int) {
	buf.Grow(n * len(s))
	for n > 0 {
		buf.WriteString(s)
		n--
	}
}
