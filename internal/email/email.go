// Copyright (c) 2026 The Wrapped Authors
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

// Package email splits raw RFC-2822 email text into headers and body parts
// and decodes quoted-printable transfer encoding.
//
// The decoder deliberately does not use mime/quotedprintable: receipt emails
// in the wild contain malformed escapes, and the stdlib reader reports them
// as errors, while this pipeline must pass them through as literal text and
// never fail.
package email

import (
	"regexp"
	"strings"
)

// Message is a parsed email: folded headers plus the first plain-text and
// HTML body parts. A missing part is an empty string, not an error.
type Message struct {
	Headers   map[string]string
	PlainText string
	HTMLText  string
}

// Header returns the named header (lowercase key), or "" if absent.
func (m *Message) Header(key string) string {
	return m.Headers[strings.ToLower(key)]
}

var (
	softBreakRe = regexp.MustCompile(`=\r?\n`)
	blankLineRe = regexp.MustCompile(`\r?\n\r?\n`)
	headerFold  = regexp.MustCompile(`\r?\n[ \t]+`)
	headerLine  = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
	boundaryRe  = regexp.MustCompile(`boundary=([^\s;]+)`)
)

// isHex reports whether b is an ASCII hexadecimal digit.
func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexVal(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}

// DecodeQuotedPrintable decodes quoted-printable text.
//
// Soft line breaks (= followed by a line terminator) are removed first, then
// every =XX escape contributes one raw byte to the output stream, so
// multi-byte UTF-8 sequences split across several escapes reassemble
// correctly. Anything that is not a valid escape passes through unchanged;
// malformed input never produces an error.
func DecodeQuotedPrintable(s string) string {
	s = softBreakRe.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(hexVal(s[i+1])<<4 | hexVal(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ParseHeaders extracts the header block of a raw email into a map with
// lowercased keys. Continuation lines (leading whitespace) are folded into
// the previous header value.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)

	section := blankLineRe.Split(raw, 2)[0]
	section = headerFold.ReplaceAllString(section, " ")

	for _, line := range regexp.MustCompile(`\r?\n`).Split(section, -1) {
		if m := headerLine.FindStringSubmatch(line); m != nil {
			headers[strings.ToLower(m[1])] = m[2]
		}
	}
	return headers
}

// Parse splits a raw email into headers and body parts.
//
// Without a boundary parameter the email is treated as non-multipart: the
// body is everything after the first blank line and there is no HTML part.
// With a boundary, each segment between --<boundary> delimiters is checked
// for a text/plain or text/html content type; the first match of each kind
// wins. Parts whose headers mention quoted-printable are decoded.
func Parse(raw string) Message {
	msg := Message{Headers: ParseHeaders(raw)}

	bm := boundaryRe.FindStringSubmatch(raw)
	if bm == nil {
		if loc := blankLineRe.FindStringIndex(raw); loc != nil {
			msg.PlainText = raw[loc[1]:]
		}
		return msg
	}

	boundary := strings.ReplaceAll(bm[1], `"`, "")
	parts := strings.Split(raw, "--"+boundary)

	for _, part := range parts {
		kind := partKind(part)
		if kind == "" {
			continue
		}

		loc := blankLineRe.FindStringIndex(part)
		if loc == nil {
			continue
		}
		content := part[loc[1]:]
		if strings.Contains(strings.ToLower(part[:loc[0]]), "quoted-printable") {
			content = DecodeQuotedPrintable(content)
		}

		switch kind {
		case "plain":
			if msg.PlainText == "" {
				msg.PlainText = content
			}
		case "html":
			if msg.HTMLText == "" {
				msg.HTMLText = content
			}
		}
	}
	return msg
}

// partKind inspects a MIME part's header block and reports "plain", "html",
// or "" when the part is neither.
func partKind(part string) string {
	headerBlock := part
	if loc := blankLineRe.FindStringIndex(part); loc != nil {
		headerBlock = part[:loc[0]]
	}
	lower := strings.ToLower(headerBlock)
	switch {
	case strings.Contains(lower, "text/plain"):
		return "plain"
	case strings.Contains(lower, "text/html"):
		return "html"
	}
	return ""
}
