// Package opprovider resolves workspace secrets with the 1Password CLI.
package opprovider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wolfeidau/hackpad-cli/config"
)

type options struct {
	binary  string
	account string
}

// Option configures the 1Password provider.
type Option func(*options)

// WithBinary sets the path of the op executable.
func WithBinary(path string) Option {
	return func(o *options) {
		o.binary = path
	}
}

// WithAccount selects the 1Password account to read from.
func WithAccount(account string) Option {
	return func(o *options) {
		o.account = account
	}
}

// WithOnePassword registers an "op" template function that resolves secret
// references such as op://vault/hackpad/secret with `op read`.
func WithOnePassword(opts ...Option) config.ResolverOption {
	o := options{binary: "op"}
	for _, opt := range opts {
		opt(&o)
	}

	return config.WithProvider("op", func(ctx context.Context, ref string) (string, error) {
		args := []string{"read", "--no-newline"}
		if o.account != "" {
			args = append(args, "--account", o.account)
		}
		args = append(args, ref)

		cmd := exec.CommandContext(ctx, o.binary, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("op read %q: %s: %w", ref, strings.TrimSpace(stderr.String()), err)
		}
		return strings.TrimSpace(stdout.String()), nil
	})
}
