package main

import (
	"github.com/urfave/cli"
)

func cmdRun(c *cli.Context) error {
	if c.GlobalString("config") == "" {
		return usageErrorf("run: --config is required")
	}
	if c.NArg() > 0 {
		return usageErrorf("run: unexpected arguments %v", []string(c.Args()))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	items, err := cfg.DownloadItems()
	if err != nil {
		return &usageError{err}
	}
	return download(c, cfg, items)
}
