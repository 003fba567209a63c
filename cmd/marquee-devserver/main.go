package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/marquee/internal/config"
	"github.com/five82/marquee/internal/devserver"
	"github.com/five82/marquee/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":3000", "listen address")
	seed := flag.Bool("seed", true, "load the demo catalog and account")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	envFile := flag.String("env", "", "path to a .env file (optional, defaults to ./.env)")
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "marquee-devserver: %v\n", err)
		return 1
	}

	srv, err := devserver.New(devserver.Options{
		Secret: []byte(os.Getenv("MARQUEE_DEV_SECRET")),
		Seed:   *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "marquee-devserver: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", *addr).Bool("seed", *seed).Msg("dev backend listening")
		if *seed {
			logging.Info().Str("email", devserver.DemoEmail).Str("password", devserver.DemoPassword).Msg("demo account")
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("server stopped")
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("shutdown")
			return 1
		}
	}
	return 0
}
