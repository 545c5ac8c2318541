// Package main provides the entry point for the Beacon server application.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/di"
	"github.com/beaconapp/beacon-server/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Create DI container
	injector := di.NewContainer(*configPath)

	// Bootstrap all services
	tree, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := tree.ServeBackground(ctx)
	log.Info("Server running")

	select {
	case <-ctx.Done():
		log.Info("Shutting down server gracefully...")
		<-done
	case err := <-done:
		// The root supervisor only returns early when it is itself broken.
		log.Error("Supervisor stopped unexpectedly", "error", err)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			log.Warn("Service did not stop in time", "service", svc.Name)
		}
	}

	// Closes the router, broker, mailer, search index and store in reverse
	// dependency order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Goodbye")
}
