package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/exodusfi/exodus/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "exodus",
		Usage: "fiat to stable conversion and yield settlement service",
		Before: func(*cli.Context) error {
			config.LoadDotEnv()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "keeper", Usage: "also run keeper workers in-process"},
				},
				Action: func(c *cli.Context) error {
					return serve(c.Context, config.Load(), c.Bool("keeper"))
				},
			},
			{
				Name:  "keeper",
				Usage: "run keeper workers only",
				Action: func(c *cli.Context) error {
					return keeper(c.Context, config.Load())
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Action: func(c *cli.Context) error {
					return migrate(c.Context, config.Load())
				},
			},
			{
				Name:  "export",
				Usage: "export the conversion ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "xlsx", Usage: "write an Excel workbook to `PATH`"},
					&cli.BoolFlag{Name: "sheets", Usage: "write to the configured Google spreadsheet"},
				},
				Action: func(c *cli.Context) error {
					return exportLedger(c.Context, config.Load(), c.String("xlsx"), c.Bool("sheets"))
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
