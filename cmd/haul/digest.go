package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/ligustah/haul/internal/integrity"
	"github.com/ligustah/haul/internal/transfer"
)

// cmdDigest prints "alg:hex  path" per file, the form accepted by --digest
// and the config file.
func cmdDigest(c *cli.Context) error {
	if c.NArg() == 0 {
		return usageErrorf("digest: at least one file is required")
	}
	alg, err := integrity.ParseAlgorithm(c.String("algorithm"))
	if err != nil {
		return &usageError{err}
	}
	for _, p := range c.Args() {
		sum, err := integrity.File(alg, p)
		if err != nil {
			return &transfer.FilesystemError{Op: "digest", Path: p, Err: err}
		}
		fmt.Fprintf(c.App.Writer, "%s:%s  %s\n", alg, sum, p)
	}
	return nil
}
