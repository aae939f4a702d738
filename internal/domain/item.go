package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Item is one candidate video discovered on the source page
type Item struct {
	Locator string `json:"locator"`
	Title   string `json:"title"`
	Ordinal int    `json:"ordinal"`        // 1-based position on the source page
	Page    string `json:"page,omitempty"` // source page the item was listed on
}

// ResolvedStream is an item whose final stream URL is known.
// Build it with NewResolvedStream so StreamURL and RefererURL are always valid.
type ResolvedStream struct {
	Item       Item
	StreamURL  string
	RefererURL string
	Title      string // title reported by the player page, may be empty
}

// NewResolvedStream validates the discovered stream URL and referer
func NewResolvedStream(item Item, streamURL, refererURL, title string) (ResolvedStream, error) {
	if _, err := parseHTTPURL(streamURL); err != nil {
		return ResolvedStream{}, fmt.Errorf("%w: %q", ErrInvalidStream, streamURL)
	}
	if strings.TrimSpace(refererURL) == "" {
		return ResolvedStream{}, ErrMissingReferer
	}
	return ResolvedStream{
		Item:       item,
		StreamURL:  streamURL,
		RefererURL: refererURL,
		Title:      strings.TrimSpace(title),
	}, nil
}

// DisplayTitle returns the item title, falling back to the player page title
func (s ResolvedStream) DisplayTitle() string {
	if t := strings.TrimSpace(s.Item.Title); t != "" {
		return t
	}
	return s.Title
}

// ValidateLocator checks that a per-item reference is an absolute http(s) URL
func ValidateLocator(locator string) (*url.URL, error) {
	u, err := parseHTTPURL(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return u, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

// OriginOf returns scheme://host of a URL, or "" when it cannot be parsed
func OriginOf(rawURL string) string {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// NormalizePageURL upgrades or adds the https scheme of the operator supplied page URL.
// "example.com/x" and "http://example.com/x" both become "https://example.com/x".
func NormalizePageURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("page url is empty")
	}

	switch {
	case strings.HasPrefix(s, "https://"):
	case strings.HasPrefix(s, "http://"):
		s = "https://" + strings.TrimPrefix(s, "http://")
	case strings.Contains(s, "://"):
		return "", fmt.Errorf("unsupported page url scheme: %s", s)
	default:
		s = "https://" + s
	}

	if _, err := parseHTTPURL(s); err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", raw, err)
	}
	return s, nil
}

// FilterByPrefix splits items into those whose locator starts with prefix and the rest.
// An empty prefix keeps everything.
func FilterByPrefix(items []Item, prefix string) (kept, dropped []Item) {
	for _, it := range items {
		if prefix == "" || strings.HasPrefix(it.Locator, prefix) {
			kept = append(kept, it)
		} else {
			dropped = append(dropped, it)
		}
	}
	return kept, dropped
}

// SelectWindow applies the 1-based inclusive [from, to] window, clamped to len(items).
// An inverted or out-of-range window selects nothing.
func SelectWindow(items []Item, from, to int) (selected, outside []Item) {
	start := from
	if start < 1 {
		start = 1
	}
	end := to
	if end > len(items) {
		end = len(items)
	}
	if start > end {
		return nil, append([]Item(nil), items...)
	}

	selected = append([]Item(nil), items[start-1:end]...)
	outside = append(outside, items[:start-1]...)
	outside = append(outside, items[end:]...)
	return selected, outside
}

// WindowSize is the number of items SelectWindow picks out of n
func WindowSize(n, from, to int) int {
	if from < 1 {
		from = 1
	}
	if to > n {
		to = n
	}
	if to < from {
		return 0
	}
	return to - from + 1
}

const maxFileNameBytes = 200

// ComposeFileName builds "{prefix} {title}{ext}" made safe for common filesystems
func ComposeFileName(prefix, title string, ordinal int, ext string) string {
	t := SanitizeFileName(title)
	if t == "" {
		t = fmt.Sprintf("video %d", ordinal)
	}
	base := SanitizeFileName(strings.TrimSpace(prefix) + " " + t)
	return truncateBytes(base, maxFileNameBytes) + ext
}

// WithOrdinalSuffix turns "Title Foo.mp4" into "Title Foo (3).mp4"
func WithOrdinalSuffix(fileName string, ordinal int) string {
	ext := ""
	if i := strings.LastIndex(fileName, "."); i > 0 {
		ext = fileName[i:]
		fileName = fileName[:i]
	}
	return fmt.Sprintf("%s (%d)%s", fileName, ordinal, ext)
}

// SanitizeFileName replaces characters that are invalid in file names,
// collapses whitespace and trims leading/trailing dots and spaces.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r), strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	return strings.Trim(s, ". ")
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.Trim(s[:cut], ". ")
}
