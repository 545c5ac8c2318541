// Package di provides dependency injection configuration for the Beacon server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/auth"
	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/di/providers"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/service"
	"github.com/beaconapp/beacon-server/internal/supervisor"
	"github.com/beaconapp/beacon-server/internal/sweeper"
)

// NewContainer creates and configures the DI container with all providers.
// configPath may be empty; see config.Load.
func NewContainer(configPath string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ConfigFrom(configPath))
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Messaging layer
	do.Provide(injector, providers.ProvideBroker)
	do.Provide(injector, providers.ProvideRouter)
	do.Provide(injector, providers.ProvideMailer)

	// Auth layer
	do.Provide(injector, providers.ProvideIssuer)
	do.Provide(injector, providers.ProvideHasher)

	// Business services
	do.Provide(injector, providers.ProvideGroupService)
	do.Provide(injector, providers.ProvideBeaconService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideAuthService)

	// Workers
	do.Provide(injector, providers.ProvideReconciler)
	do.Provide(injector, providers.ProvideSweeperJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideSupervisor)

	return injector
}

// Bootstrap initializes all services and returns the supervisor tree that runs them.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) (*supervisor.Tree, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.BrokerHandle](injector)
	_ = do.MustInvoke[*providers.RouterHandle](injector)
	_ = do.MustInvoke[auth.Issuer](injector)

	// Business services
	_ = do.MustInvoke[*service.GroupService](injector)
	_ = do.MustInvoke[*service.BeaconService](injector)
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)

	// Workers
	_ = do.MustInvoke[*reconcile.Reconciler](injector)
	_ = do.MustInvoke[*sweeper.Job](injector)

	tree, err := do.Invoke[*supervisor.Tree](injector)
	if err != nil {
		return nil, err
	}

	if err := providers.ReindexSearchIfNeeded(context.Background(), injector); err != nil {
		return nil, err
	}

	return tree, nil
}
