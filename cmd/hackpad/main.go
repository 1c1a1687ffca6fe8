// Command hackpad is a command line client for Hackpad sites with a local
// cache of pads and pad listings.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/wolfeidau/hackpad-cli/client"
	"github.com/wolfeidau/hackpad-cli/config"
	"github.com/wolfeidau/hackpad-cli/config/opprovider"
	"github.com/wolfeidau/hackpad-cli/remote"
	"github.com/wolfeidau/hackpad-cli/store/padstore"
	"github.com/wolfeidau/hackpad-cli/telemetry"
)

var version = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	ConfigDir       string           `help:"Directory holding workspace files and the cache." default:"${config_dir}" env:"HACKPAD_CONFIG_DIR" type:"path"`
	Workspace       string           `help:"Workspace to use." short:"w" default:"default" env:"HACKPAD_WORKSPACE"`
	Plain           bool             `help:"Disable colored output."`
	URLs            bool             `name:"urls" help:"Print pad URLs instead of ids."`
	Refresh         bool             `help:"Bypass the cache and fetch from the site."`
	Timeout         time.Duration    `help:"Overall timeout for the command, 0 for none." default:"0s" env:"HACKPAD_TIMEOUT"`
	RequestTimeout  time.Duration    `help:"Timeout for each request to the site." default:"30s" env:"HACKPAD_REQUEST_TIMEOUT"`
	LogLevel        string           `help:"Log level." default:"warn" enum:"debug,info,warn,error" env:"HACKPAD_LOG_LEVEL"`
	LogFormat       string           `help:"Log format." default:"text" enum:"text,json"`
	OTLPEndpoint    string           `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics." env:"HACKPAD_OTLP_ENDPOINT"`
	MetricsTextfile string           `help:"Write metrics in Prometheus text format to this file on exit." type:"path"`
	Version         kong.VersionFlag `help:"Print version and exit."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Workspaces WorkspacesCmd `cmd:"" help:"List configured workspaces."`
	Stats      StatsCmd      `cmd:"" help:"Show cache statistics for the workspace."`
	Search     SearchCmd     `cmd:"" help:"Search pads."`
	List       ListCmd       `cmd:"" help:"List pads."`
	Check      CheckCmd      `cmd:"" help:"List pads created since the last check."`
	Info       InfoCmd       `cmd:"" help:"Show pad metadata."`
	Show       ShowCmd       `cmd:"" help:"Print pad content."`
	ClearCache ClearCacheCmd `cmd:"" name:"clear-cache" help:"Remove cached pads for the workspace."`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := withTimeout(ctx, cli.Timeout)
	defer cancel()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:        "hackpad",
		ServiceVersion:     version,
		OTLPEndpoint:       cli.OTLPEndpoint,
		PrometheusTextfile: cli.MetricsTextfile,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("shutting down metrics", "error", err)
		}
	}()

	rt := &runtime{ctx: ctx, globals: &cli.Globals, logger: logger}
	defer rt.close()

	return kctx.Run(rt)
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("hackpad"),
		kong.Description("Command line client for Hackpad with a local pad cache."),
		kong.UsageOnError(),
		kong.Vars{
			"config_dir": config.DefaultDir(),
			"version":    version,
		},
	)
}

// runtime holds what commands share during one invocation. The workspace
// and the cache are opened on first use.
type runtime struct {
	ctx     context.Context
	globals *Globals
	logger  *slog.Logger

	store padstore.Store
}

func (rt *runtime) resolverOptions() []config.ResolverOption {
	return []config.ResolverOption{
		config.WithLogger(rt.logger),
		opprovider.WithOnePassword(),
	}
}

func (rt *runtime) plain() bool {
	return rt.globals.Plain || !term.IsTerminal(int(os.Stdout.Fd()))
}

// client builds a client for the workspace, without opening the cache or
// the site when openStore is false.
func (rt *runtime) client(openStore bool) (*client.Client, error) {
	opts := []client.Option{
		client.WithPlain(rt.plain()),
		client.WithURLs(rt.globals.URLs),
		client.WithConfigDir(rt.globals.ConfigDir, rt.resolverOptions()...),
		client.WithLogger(rt.logger),
	}
	if !openStore {
		return client.New("", nil, nil, opts...), nil
	}

	ws, err := config.Load(rt.ctx, rt.globals.ConfigDir, rt.globals.Workspace, rt.resolverOptions()...)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(rt.globals.ConfigDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	store := padstore.NewInstrumentedStore(padstore.NewBoltStore(ws.Site, padstore.WithLogger(rt.logger)))
	if err := store.Open(filepath.Join(rt.globals.ConfigDir, config.CacheFile)); err != nil {
		return nil, err
	}
	rt.store = store

	api := remote.New(ws.Site,
		remote.WithCredentials(ws.ClientID, ws.Secret),
		remote.WithTimeout(rt.globals.RequestTimeout),
		remote.WithLogger(rt.logger),
	)

	rt.logger.Debug("workspace loaded", "workspace", ws.Name, "site", ws.Site)
	return client.New(ws.Site, store, api, opts...), nil
}

func (rt *runtime) close() {
	if rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("closing cache", "error", err)
	}
}

// withTimeout bounds ctx by d. Listing a large site is paced by the rate
// limiter, so a zero d leaves the command without an overall deadline and
// only the per-request timeout applies.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// exitError maps a deadline to a clearer message.
func exitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("command timed out: %w", err)
	}
	return err
}
