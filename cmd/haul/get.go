package main

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"

	"github.com/ligustah/haul/internal/config"
	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/source"
)

func cmdGet(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelp(c, "get")
		return usageErrorf("get: at least one URL is required")
	}
	digest := c.String("digest")
	if digest != "" && c.NArg() > 1 {
		return usageErrorf("get: --digest applies to a single URL, got %d", c.NArg())
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	cfg.Items = nil
	for _, arg := range c.Args() {
		it, err := parseTarget(arg, c.String("dir"))
		if err != nil {
			return err
		}
		it.Digest = digest
		cfg.Items = append(cfg.Items, it)
	}

	items, err := cfg.DownloadItems()
	if err != nil {
		return &usageError{err}
	}
	return download(c, cfg, items)
}

// parseTarget parses "URL" or "URL=DEST". The last "=" separates DEST only
// when the URL has no query or DEST looks like a path, so query parameters
// such as "?region=us-east-1" stay part of the URL.
func parseTarget(arg, dir string) (config.ItemConfig, error) {
	rawURL, dest := arg, ""
	if i := strings.LastIndex(arg, "="); i > 0 {
		candidate := arg[i+1:]
		if !strings.Contains(arg[:i], "?") || looksLikePath(candidate) {
			rawURL, dest = arg[:i], candidate
		}
	}

	var objectPath string
	if source.IsBucketURL(rawURL) {
		_, key, err := source.SplitBucketURL(rawURL)
		if err != nil {
			return config.ItemConfig{}, &usageError{err}
		}
		objectPath = key
	} else {
		u, err := haulhttp.ParseURL(rawURL)
		if err != nil {
			return config.ItemConfig{}, &usageError{err}
		}
		objectPath = u.Path
	}

	if dest == "" {
		name := path.Base(objectPath)
		if name == "" || name == "." || name == "/" {
			return config.ItemConfig{}, usageErrorf("get: cannot derive a file name from %s, use URL=DEST", rawURL)
		}
		dest = filepath.Join(dir, name)
	}
	return config.ItemConfig{URL: rawURL, Dest: dest}, nil
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, ".") ||
		strings.HasPrefix(s, "~") ||
		strings.ContainsRune(s, os.PathSeparator)
}
