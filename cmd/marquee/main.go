package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/marquee/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file path (optional, defaults to ~/.config/marquee/config.toml)")
	prefsPath := flag.String("prefs", "", "preferences file path (optional)")
	envFile := flag.String("env", "", "path to a .env file (optional, defaults to ./.env)")
	apiURL := flag.String("api", "", "backend base URL (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	ephemeral := flag.Bool("ephemeral", false, "do not persist the session between runs")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		EnvFile:    *envFile,
		APIBaseURL: *apiURL,
		LogLevel:   *logLevel,
		Ephemeral:  *ephemeral,
	}
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "marquee: %v\n", err)
		return 1
	}
	return 0
}
