package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pyropy/chainstore/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("chainstore")

func main() {
	if err := run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}

		log.Errorw("shutdown", "ERROR", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return newApp(os.Stdout).Run(args)
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "chainstore",
		Usage:  "content-addressed file store anchored in a hash-linked ledger",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "store",
				Usage: "Path of the metadata store holding the ledger and manifest index (overrides CHAINSTORE_STORE_PATH)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error or none (overrides CHAINSTORE_LOG_LEVEL)",
			},
		},
		Commands: []*cli.Command{
			ingestCmd,
			verifyCmd,
			reconstructCmd,
			listCmd,
			chainCmd,
		},
		// exit codes are handled by main so Run always returns
		ExitErrHandler: func(*cli.Context, error) {},
	}
}
