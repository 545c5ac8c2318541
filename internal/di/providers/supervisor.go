package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/supervisor"
	"github.com/beaconapp/beacon-server/internal/sweeper"
)

// ProvideSupervisor provides the supervisor tree with every long-lived
// service added. Nothing runs until the tree is served.
func ProvideSupervisor(i do.Injector) (*supervisor.Tree, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	routerHandle := do.MustInvoke[*RouterHandle](i)
	serverHandle := do.MustInvoke[*HTTPServerHandle](i)
	job := do.MustInvoke[*sweeper.Job](i)

	tree := supervisor.NewTree(log.Logger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddMessagingService(routerHandle.Router)
	if job != nil {
		tree.AddJobService(job)
	}
	tree.AddAPIService(supervisor.NewHTTPService(serverHandle.Server, cfg.Server.ShutdownTimeout))

	return tree, nil
}
