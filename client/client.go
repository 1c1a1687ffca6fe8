// Package client implements the user facing commands on top of the pad
// cache, the list synchronizer and the remote API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/wolfeidau/hackpad-cli"
	"github.com/wolfeidau/hackpad-cli/config"
	"github.com/wolfeidau/hackpad-cli/pad"
	"github.com/wolfeidau/hackpad-cli/padlist"
)

// Store is the pad cache as used by the commands.
type Store interface {
	pad.Store
	padlist.Store
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Remote is the site API as used by the commands.
type Remote interface {
	pad.Source
	padlist.Source
	Search(ctx context.Context, term string, start int) ([]hackpad.SearchResult, error)
}

// Client runs commands for one workspace and writes their output.
type Client struct {
	site      string
	store     Store
	remote    Remote
	sync      *padlist.Synchronizer
	out       io.Writer
	urls      bool
	style     *styles
	configDir string
	resolver  []config.ResolverOption
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithOutput sets where command output is written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		c.out = w
	}
}

// WithPlain disables colored output.
func WithPlain(plain bool) Option {
	return func(c *Client) {
		c.style = newStyles(!plain)
	}
}

// WithURLs prefixes pad ids with the site URL.
func WithURLs(urls bool) Option {
	return func(c *Client) {
		c.urls = urls
	}
}

// WithConfigDir sets the directory workspaces are listed from.
func WithConfigDir(dir string, opts ...config.ResolverOption) Option {
	return func(c *Client) {
		c.configDir = dir
		c.resolver = opts
	}
}

// WithLogger sets the logger for the client and the components it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client for site. store and remote may be nil for commands
// that use neither, such as Workspaces.
func New(site string, store Store, remote Remote, opts ...Option) *Client {
	c := &Client{
		site:      strings.TrimSuffix(site, "/"),
		store:     store,
		remote:    remote,
		out:       os.Stdout,
		style:     newStyles(true),
		configDir: config.DefaultDir(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sync = padlist.New(store, remote, padlist.WithLogger(c.logger), padlist.WithNow(c.now))
	return c
}

// Workspaces prints the name and site of every configured workspace.
func (c *Client) Workspaces(ctx context.Context) error {
	list, err := config.Workspaces(ctx, c.configDir, c.resolver...)
	if err != nil {
		return err
	}
	for _, ws := range list {
		c.table(ws.Name, ws.Site)
	}
	return nil
}

// Stats prints the site, the number of cached pads and the last refresh time.
func (c *Client) Stats(ctx context.Context) error {
	count, err := c.store.Count(ctx)
	if err != nil {
		return err
	}
	last, ok, err := c.store.LastRefresh(ctx)
	if err != nil {
		return err
	}

	refreshed := "not refreshed yet"
	if ok {
		refreshed = formatTime(last)
	}

	c.table("Site", c.style.site.Sprint(c.site))
	c.table("Cached Pads", strconv.Itoa(count))
	c.table("Last Refresh", refreshed)
	return nil
}

// Search prints matching pads with a highlighted snippet each.
func (c *Client) Search(ctx context.Context, term string, start int) error {
	results, err := c.remote.Search(ctx, term, start)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(c.out, "%s - %s\n", c.idOrURL(r.ID), c.style.title.Sprint(unescape(r.Title)))
		fmt.Fprintf(c.out, "   %s\n", c.highlight(r.Snippet))
	}
	return nil
}

// List prints every pad, from the cache unless refresh is set or the list
// has never been fetched.
func (c *Client) List(ctx context.Context, refresh bool) error {
	pads, err := c.sync.GetList(ctx, refresh)
	if err != nil {
		return err
	}
	for _, p := range pads {
		fmt.Fprintln(c.out, c.padLine(p))
	}
	return nil
}

// Check prints pads that appeared since the previous check.
func (c *Client) Check(ctx context.Context) error {
	fresh, err := c.sync.CheckList(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "New pads:")
	if len(fresh) == 0 {
		fmt.Fprintln(c.out, "There is no new pad.")
		return nil
	}
	for _, p := range fresh {
		fmt.Fprintln(c.out, c.padLine(p))
	}
	return nil
}

// Info prints the metadata of pad id, loading its text form and, when the
// cache lacks them, its access options.
func (c *Client) Info(ctx context.Context, id string, refresh bool) error {
	p := c.newPad(id)
	if err := c.load(ctx, p, hackpad.FormatText, refresh); err != nil {
		return err
	}
	if err := p.EnsureOptions(ctx); err != nil {
		return err
	}

	cached := "unknown"
	if !p.CachedAt().IsZero() {
		cached = formatTime(p.CachedAt())
	}

	c.table("Id", c.style.id.Sprint(id))
	c.table("Title", c.style.title.Sprint(p.Title()))
	c.table("URI", c.site+"/"+id)
	c.table("Chars", strconv.Itoa(p.Chars()))
	c.table("Lines", strconv.Itoa(p.Lines()))
	c.table("Guest Policy", p.GuestPolicy())
	c.table("Moderated", strconv.FormatBool(p.Moderated()))
	c.table("Cached", cached)
	return nil
}

// Show prints the content of pad id. Markdown is converted from the HTML form.
func (c *Client) Show(ctx context.Context, id string, format hackpad.Format, refresh bool) error {
	ext := format
	if format == hackpad.FormatMarkdown {
		ext = hackpad.FormatHTML
	}

	p := c.newPad(id)
	if err := c.load(ctx, p, ext, refresh); err != nil {
		return err
	}

	if format != hackpad.FormatMarkdown {
		fmt.Fprintln(c.out, p.Content())
		return nil
	}

	markdown, err := ToMarkdown(p.Content())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, markdown)
	return nil
}

// ClearCache removes everything cached for the workspace.
func (c *Client) ClearCache(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Cache cleared for %s\n", c.site)
	return nil
}

// ToMarkdown converts pad HTML to GitHub flavored Markdown.
func ToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return out, nil
}

func (c *Client) newPad(id string) *pad.Pad {
	return pad.New(id, c.store, c.remote, pad.WithLogger(c.logger), pad.WithNow(c.now))
}

func (c *Client) load(ctx context.Context, p *pad.Pad, format hackpad.Format, refresh bool) error {
	if refresh {
		return p.Reload(ctx, format)
	}
	return p.Load(ctx, format)
}
