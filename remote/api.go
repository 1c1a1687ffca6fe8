package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/hackpad-cli"
)

// searchHit is one entry of a search response.
type searchHit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// optionsResponse is the body of /pad/{id}/options.
type optionsResponse struct {
	Success bool        `json:"success"`
	Options *padOptions `json:"options"`
}

type padOptions struct {
	GuestPolicy string `json:"guestPolicy"`
	IsModerated bool   `json:"isModerated"`
}

// Search runs a full text search starting at result offset start.
func (c *Client) Search(ctx context.Context, term string, start int) ([]hackpad.SearchResult, error) {
	query := url.Values{}
	query.Set("q", term)
	query.Set("start", strconv.Itoa(start))
	query.Set("limit", strconv.Itoa(c.searchLimit))

	var hits []searchHit
	if err := c.getJSON(ctx, "search", "/search", query, &hits); err != nil {
		return nil, &hackpad.FetchError{Op: "search", Err: err}
	}

	results := make([]hackpad.SearchResult, 0, len(hits))
	for i, h := range hits {
		if h.ID == "" {
			return nil, &hackpad.FetchError{Op: "search", Err: &hackpad.DecodeError{
				Field:  fmt.Sprintf("[%d].id", i),
				Reason: "missing",
			}}
		}
		results = append(results, hackpad.SearchResult(h))
	}
	return results, nil
}

// Fetch returns the latest revision of pad id in format along with its
// access options.
func (c *Client) Fetch(ctx context.Context, id string, format hackpad.Format) (*hackpad.Content, error) {
	if id == "" {
		return nil, &hackpad.FetchError{Op: "pad", Err: &hackpad.DecodeError{Field: "id", Reason: "empty"}}
	}

	body, err := c.content(ctx, id, format)
	if err != nil {
		return nil, &hackpad.FetchError{Op: "pad content", ID: id, Err: err}
	}

	opts, err := c.Options(ctx, id)
	if err != nil {
		return nil, err
	}

	content := newContent(format, body)
	content.GuestPolicy = opts.GuestPolicy
	content.Moderated = opts.Moderated
	content.HasOptions = true
	return content, nil
}

// Options returns the access options of pad id.
func (c *Client) Options(ctx context.Context, id string) (*hackpad.Options, error) {
	if id == "" {
		return nil, &hackpad.FetchError{Op: "pad options", Err: &hackpad.DecodeError{Field: "id", Reason: "empty"}}
	}
	opts, err := c.options(ctx, id)
	if err != nil {
		return nil, &hackpad.FetchError{Op: "pad options", ID: id, Err: err}
	}
	return &hackpad.Options{GuestPolicy: opts.GuestPolicy, Moderated: opts.IsModerated}, nil
}

// List returns every pad on the site, in the order the site lists them.
// Titles are read from each pad's txt body, fetched concurrently, and the
// body is returned with the entry so callers can cache it.
func (c *Client) List(ctx context.Context) ([]hackpad.Listing, error) {
	ids, err := c.padIDs(ctx)
	if err != nil {
		return nil, &hackpad.FetchError{Op: "pads", Err: err}
	}

	pads := make([]hackpad.Listing, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			body, err := c.content(gctx, id, hackpad.FormatText)
			if err != nil {
				return &hackpad.FetchError{Op: "pad title", ID: id, Err: err}
			}
			text := newContent(hackpad.FormatText, body)
			pads[i] = hackpad.Listing{ID: id, Title: text.Title, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("listed pads", "site", c.site, "pads", len(pads))
	return pads, nil
}

func newContent(format hackpad.Format, body string) *hackpad.Content {
	return &hackpad.Content{
		Format: format,
		Title:  titleOf(format, body),
		Body:   body,
		Chars:  hackpad.CountChars(body),
		Lines:  hackpad.CountLines(body),
	}
}

func (c *Client) padIDs(ctx context.Context) ([]string, error) {
	var raw []json.RawMessage
	if err := c.getJSON(ctx, "pads", "/pads/all", nil, &raw); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(raw))
	for i, r := range raw {
		var id string
		if err := json.Unmarshal(r, &id); err != nil || id == "" {
			return nil, &hackpad.DecodeError{Field: fmt.Sprintf("[%d]", i), Reason: "not a pad id"}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) content(ctx context.Context, id string, format hackpad.Format) (string, error) {
	body, err := c.get(ctx, "content", padPath(id, "content", "latest."+string(format)), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) options(ctx context.Context, id string) (*padOptions, error) {
	var resp optionsResponse
	if err := c.getJSON(ctx, "options", padPath(id, "options"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Options == nil {
		return nil, &hackpad.DecodeError{Field: "options", Reason: "missing"}
	}
	return resp.Options, nil
}

// titleOf derives a pad title from its body: the first non-blank line of
// the rendered text.
func titleOf(format hackpad.Format, body string) string {
	switch format {
	case hackpad.FormatHTML:
		return hackpad.TitleFromText(TextFromHTML(body))
	case hackpad.FormatMarkdown:
		return strings.TrimSpace(strings.TrimLeft(hackpad.TitleFromText(body), "#"))
	default:
		return hackpad.TitleFromText(body)
	}
}
