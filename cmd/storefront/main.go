// cmd/storefront/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("storefront", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: storefront [-metrics-addr addr] <cart|add|remove|clear|checkout> [flags]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"name":        cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"api":         cfg.API.BaseURL,
	}).Info("Starting storefront client")

	a, err := newApp(cfg, log, os.Stdout)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}
	if *metricsAddr != "" {
		a.serveMetrics(*metricsAddr)
	}

	// Stop on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = a.run(ctx, fs.Args())
	stop()
	a.close()

	if err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
