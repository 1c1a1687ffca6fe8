// Package config loads workspace settings. Each workspace is a YAML file in
// the config directory, rendered as a template first so secrets can come
// from the environment, files or a secret manager.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DefaultWorkspace is used when no workspace is named.
	DefaultWorkspace = "default"

	// CacheFile is the name of the cache database inside the config directory.
	CacheFile = "cache.db"

	workspaceExt = ".yml"
	dotEnvFile   = ".env"
)

// Environment variables that override values from the workspace file.
const (
	EnvSite     = "HACKPAD_SITE"
	EnvClientID = "HACKPAD_CLIENT_ID"
	EnvSecret   = "HACKPAD_SECRET"
)

// ErrWorkspaceNotFound is returned when the workspace file does not exist.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// Workspace is the configuration of one Hackpad site.
type Workspace struct {
	Name     string `yaml:"name"`
	Site     string `yaml:"site"`
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
}

// Validate checks the workspace has a usable site URL.
func (w *Workspace) Validate() error {
	if w.Site == "" {
		return errors.New("site is required")
	}
	u, err := url.Parse(w.Site)
	if err != nil {
		return fmt.Errorf("site %q: %w", w.Site, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("site %q: scheme must be http or https", w.Site)
	}
	if u.Host == "" {
		return fmt.Errorf("site %q: missing host", w.Site)
	}
	return nil
}

// DefaultDir returns ~/.hackpad-cli.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hackpad-cli"
	}
	return filepath.Join(home, ".hackpad-cli")
}

// WorkspacePath returns the path of the named workspace file in dir.
func WorkspacePath(dir, name string) string {
	return filepath.Join(dir, name+workspaceExt)
}

// Load reads the named workspace from dir. A .env file in dir is loaded into
// the environment first, without replacing variables that are already set.
// HACKPAD_SITE, HACKPAD_CLIENT_ID and HACKPAD_SECRET override the file.
func Load(ctx context.Context, dir, name string, opts ...ResolverOption) (*Workspace, error) {
	if name == "" {
		name = DefaultWorkspace
	}
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	path := WorkspacePath(dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (create %s)", ErrWorkspaceNotFound, name, path)
	}

	ws, err := NewResolver(opts...).ResolveFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if ws.Name == "" {
		ws.Name = name
	}
	applyEnv(ws)
	ws.Site = strings.TrimSuffix(ws.Site, "/")

	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("workspace %s: %w", name, err)
	}
	return ws, nil
}

// Workspaces returns every workspace configured in dir, sorted by file name.
// Environment overrides are not applied.
func Workspaces(ctx context.Context, dir string, opts ...ResolverOption) ([]Workspace, error) {
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+workspaceExt))
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	sort.Strings(paths)

	r := NewResolver(opts...)
	out := make([]Workspace, 0, len(paths))
	for _, path := range paths {
		ws, err := r.ResolveFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if ws.Name == "" {
			ws.Name = strings.TrimSuffix(filepath.Base(path), workspaceExt)
		}
		out = append(out, *ws)
	}
	return out, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, dotEnvFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnv(ws *Workspace) {
	if v, ok := os.LookupEnv(EnvSite); ok && v != "" {
		ws.Site = v
	}
	if v, ok := os.LookupEnv(EnvClientID); ok && v != "" {
		ws.ClientID = v
	}
	if v, ok := os.LookupEnv(EnvSecret); ok && v != "" {
		ws.Secret = v
	}
}
