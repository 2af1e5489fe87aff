// Package addr extracts comparable keys from raw address strings.
// Dedup itself uses exact string equality; these helpers only feed
// grouping, heuristics and prompt construction.
package addr

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Domain returns the lowercased host of the address with any "www."
// prefix and port stripped. Addresses that do not parse, or that have
// no host (about:, data:), return an empty string.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Path returns the path component of the address, or "" if it does not parse.
func Path(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Path
}

// internalSchemes are browser-owned pages that never reach a real site.
var internalSchemes = []string{
	"about:",
	"chrome:",
	"moz-extension:",
	"chrome-extension:",
	"edge:",
	"view-source:",
	"file:",
}

// IsBrowserInternal reports whether the address is a browser-internal page.
func IsBrowserInternal(raw string) bool {
	s := strings.TrimSpace(strings.ToLower(raw))
	for _, scheme := range internalSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// Truncate shortens an address to at most n bytes for prompt payloads,
// cutting on a rune boundary so the result stays valid UTF-8.
func Truncate(raw string, n int) string {
	if len(raw) <= n {
		return raw
	}
	for n > 0 && !utf8.RuneStart(raw[n]) {
		n--
	}
	return raw[:n]
}
