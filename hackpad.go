// Package hackpad holds the domain types shared by the hackpad command line
// client: pad records, listing summaries, fetched content and the error
// taxonomy used by the cache and the remote API client.
package hackpad

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Format is the representation a pad's content is fetched in.
type Format string

const (
	FormatText     Format = "txt"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
)

// ParseFormat validates a format name supplied by a user.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatHTML, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want txt, html or md)", s)
	}
}

// Summary is one entry of a pad listing.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SearchResult is a single search hit. Title and Snippet are HTML escaped,
// and Snippet marks matches with <b class="hit">.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Listing is one pad of a remote listing. Text, when set, is the txt body
// the title was read from.
type Listing struct {
	ID    string
	Title string
	Text  *Content
}

// Summary returns the listing entry without its body.
func (l Listing) Summary() Summary {
	return Summary{ID: l.ID, Title: l.Title}
}

// Options are the access settings of a pad.
type Options struct {
	GuestPolicy string
	Moderated   bool
}

// Content is what the remote API returns for one pad in one format.
// HasOptions is false when the pad's access options were not requested.
type Content struct {
	Format      Format
	Title       string
	Body        string
	Chars       int
	Lines       int
	GuestPolicy string
	Moderated   bool
	HasOptions  bool
}

// Record is the cached state of a pad. Content only ever gains formats
// within a cache lifetime. GuestPolicy and Moderated are meaningful only
// when HasOptions is set.
type Record struct {
	ID          string
	Title       string
	Content     map[Format]string
	GuestPolicy string
	Moderated   bool
	HasOptions  bool
	CachedAt    time.Time
}

// NewRecordFromContent builds a record holding a single freshly fetched format.
func NewRecordFromContent(id string, c *Content, fetchedAt time.Time) *Record {
	return &Record{
		ID:          id,
		Title:       c.Title,
		Content:     map[Format]string{c.Format: c.Body},
		GuestPolicy: c.GuestPolicy,
		Moderated:   c.Moderated,
		HasOptions:  c.HasOptions,
		CachedAt:    fetchedAt,
	}
}

// HasFormat reports whether content for f is present.
func (r *Record) HasFormat(f Format) bool {
	if r == nil || r.Content == nil {
		return false
	}
	_, ok := r.Content[f]
	return ok
}

// Formats returns the cached formats in a stable order.
func (r *Record) Formats() []Format {
	var out []Format
	for _, f := range []Format{FormatText, FormatHTML, FormatMarkdown} {
		if r.HasFormat(f) {
			out = append(out, f)
		}
	}
	return out
}

// Chars returns the character count of the body in format f.
func (r *Record) Chars(f Format) int {
	if r == nil {
		return 0
	}
	return CountChars(r.Content[f])
}

// Lines returns the line count of the body in format f.
func (r *Record) Lines(f Format) int {
	if r == nil {
		return 0
	}
	return CountLines(r.Content[f])
}

// Merge folds o into r. Formats present in o overwrite those in r and all
// other formats are kept. Access options are taken from o only when o
// carries them, and a non-empty title always wins. CachedAt never moves
// backwards.
func (r *Record) Merge(o *Record) {
	if o == nil {
		return
	}
	if r.Content == nil {
		r.Content = make(map[Format]string, len(o.Content))
	}
	for f, body := range o.Content {
		r.Content[f] = body
	}
	if o.Title != "" {
		r.Title = o.Title
	}
	if o.HasOptions {
		r.GuestPolicy = o.GuestPolicy
		r.Moderated = o.Moderated
		r.HasOptions = true
	}
	if o.CachedAt.After(r.CachedAt) {
		r.CachedAt = o.CachedAt
	}
}

// Summary returns the listing view of the record.
func (r *Record) Summary() Summary {
	return Summary{ID: r.ID, Title: r.Title}
}

// CountChars returns the number of characters (runes) in body.
func CountChars(body string) int {
	return utf8.RuneCountInString(body)
}

// CountLines returns the number of lines in body. A trailing newline does not
// start a new line.
func CountLines(body string) int {
	if body == "" {
		return 0
	}
	n := strings.Count(body, "\n")
	if !strings.HasSuffix(body, "\n") {
		n++
	}
	return n
}

// TitleFromText returns the first non-blank line of a plain text body.
func TitleFromText(body string) string {
	for line := range strings.SplitSeq(body, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
