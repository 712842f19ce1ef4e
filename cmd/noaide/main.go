// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/app"
)

var version = "0.1.0"

func main() {
	var (
		configPath  string
		port        int
		httpPort    int
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to tuning config file (default: auto-detect noaide.hjson/noaide.json)")
	flag.StringVar(&configPath, "c", "", "Path to tuning config file (short)")
	flag.IntVar(&port, "port", 0, "Transport server port (overrides config)")
	flag.IntVar(&httpPort, "http-port", 0, "HTTP API port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("noaide %s\n", version)
		os.Exit(0)
	}

	log := newLogger(debug)

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Port:       port,
		HTTPPort:   httpPort,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create app")
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("app error")
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
