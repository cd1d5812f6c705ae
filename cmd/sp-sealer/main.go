package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("sp-sealer")

func main() {
	app := &cli.App{
		Name:                 "sp-sealer",
		Usage:                "seal sectors and prove them over a local repo",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				EnvVars: []string{"SP_SEALER_PATH"},
				Value:   "~/.sp-sealer",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
		},
		Before: func(cctx *cli.Context) error {
			return logging.SetLogLevel("*", cctx.String("log-level"))
		},
		Commands: []*cli.Command{
			sealCmd,
			listCmd,
			verifyCmd,
			unsealCmd,
			challengesCmd,
			proveCmd,
		},
	}

	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err) // nolint: errcheck
		os.Exit(1)
	}
}
