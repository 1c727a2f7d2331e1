package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/ligustah/haul/internal/config"
	"github.com/ligustah/haul/internal/downloader"
	"github.com/ligustah/haul/internal/logger"
	"github.com/ligustah/haul/internal/progress"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitSourceNotAccess  = 3
	ExitStorageError     = 5
	ExitValidationFailed = 7
)

var version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).Run(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "haul"
	app.Usage = "resumable concurrent downloads over HTTP and object storage"
	app.Version = version
	app.Writer = stdout
	app.ErrWriter = stderr
	// Errors are mapped to exit codes by run.
	app.ExitErrHandler = func(*cli.Context, error) {}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "read configuration from `FILE`",
			EnvVar: "HAUL_CONFIG",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
		cli.StringFlag{
			Name:  "progress",
			Usage: "progress display: bars, text or none",
		},
		cli.IntFlag{
			Name:  "max-concurrent, j",
			Usage: "number of transfers to run at once",
		},
		cli.StringFlag{
			Name:  "temp-dir",
			Usage: "keep partial downloads in `DIR`",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "get",
			Usage:     "download URLs",
			ArgsUsage: "URL[=DEST]...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "dir",
					Value: ".",
					Usage: "directory for items given without DEST",
				},
				cli.StringFlag{
					Name:  "digest",
					Usage: "expected digest of a single item, as alg:hex",
				},
			},
			Action: cmdGet,
		},
		{
			Name:   "run",
			Usage:  "download the items listed in the config file",
			Action: cmdRun,
		},
		{
			Name:      "digest",
			Usage:     "print digests of local files",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "algorithm, a",
					Value: "sha256",
					Usage: "digest algorithm",
				},
			},
			Action: cmdDigest,
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.NArg() > 0 {
			return usageErrorf("unknown command %q", c.Args().First())
		}
		cli.ShowAppHelp(c)
		return usageErrorf("no command given")
	}

	return app
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then HAUL_* variables, then global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return cfg, &usageError{err}
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, &usageError{err}
	}

	override := config.Config{
		MaxConcurrent: c.GlobalInt("max-concurrent"),
		TempDir:       c.GlobalString("temp-dir"),
		Progress:      c.GlobalString("progress"),
	}
	if c.GlobalBool("debug") {
		override.LogLevel = "debug"
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return cfg, &usageError{err}
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	return cfg, nil
}

func newDisplay(mode string, w io.Writer) progress.Display {
	switch mode {
	case config.ProgressBars:
		return progress.NewBars(w)
	case config.ProgressText:
		return progress.NewReporter(progress.Options{Output: w})
	default:
		return progress.Nop()
	}
}

// download runs the batch until it settles or the process is interrupted.
// Partial files stay in the temp directory so the next run resumes them.
func download(c *cli.Context, cfg config.Config, items []downloader.Item) error {
	opts, err := cfg.Options()
	if err != nil {
		return &usageError{err}
	}
	opts.Display = newDisplay(cfg.Progress, c.App.ErrWriter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(c.App.ErrWriter, "\n[haul] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	err = downloader.Download(ctx, items, opts)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintf(c.App.ErrWriter, "[haul] Partial downloads kept in %s\n", opts.TempDir)
	}
	return err
}
