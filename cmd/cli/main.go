package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/wasteops/fieldsync/internal/buildinfo"
	"github.com/wasteops/fieldsync/internal/cli"
	"github.com/wasteops/fieldsync/internal/config"
	"github.com/wasteops/fieldsync/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
