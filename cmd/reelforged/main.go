// Command reelforged runs the reelforge daemon without the client commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"reelforge/internal/config"
	"reelforge/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override logging.level")
	development := flag.Bool("dev", false, "Include source locations in logs")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
