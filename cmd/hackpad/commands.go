package main

import (
	"github.com/wolfeidau/hackpad-cli"
)

// WorkspacesCmd lists workspaces.
type WorkspacesCmd struct{}

func (c *WorkspacesCmd) Run(rt *runtime) error {
	cl, err := rt.client(false)
	if err != nil {
		return err
	}
	return exitError(cl.Workspaces(rt.ctx))
}

// StatsCmd shows cache statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.Stats(rt.ctx))
}

// SearchCmd runs a full text search.
type SearchCmd struct {
	Term  string `arg:"" help:"Search term."`
	Start int    `help:"Offset of the first result." default:"0"`
}

func (c *SearchCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.Search(rt.ctx, c.Term, c.Start))
}

// ListCmd lists pads.
type ListCmd struct{}

func (c *ListCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.List(rt.ctx, rt.globals.Refresh))
}

// CheckCmd lists new pads.
type CheckCmd struct{}

func (c *CheckCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.Check(rt.ctx))
}

// InfoCmd shows pad metadata.
type InfoCmd struct {
	ID string `arg:"" help:"Pad id."`
}

func (c *InfoCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.Info(rt.ctx, c.ID, rt.globals.Refresh))
}

// ShowCmd prints pad content.
type ShowCmd struct {
	ID     string `arg:"" help:"Pad id."`
	Format string `arg:"" optional:"" default:"txt" enum:"txt,html,md" help:"Output format (txt, html or md)."`
}

func (c *ShowCmd) Run(rt *runtime) error {
	format, err := hackpad.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.Show(rt.ctx, c.ID, format, rt.globals.Refresh))
}

// ClearCacheCmd empties the cache for the workspace.
type ClearCacheCmd struct{}

func (c *ClearCacheCmd) Run(rt *runtime) error {
	cl, err := rt.client(true)
	if err != nil {
		return err
	}
	return exitError(cl.ClearCache(rt.ctx))
}
