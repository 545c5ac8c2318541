package providers

import (
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/api"
	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/service"
)

// HTTPServerHandle holds the API handler and the http.Server serving it.
// The supervisor runs the server; Shutdown releases the handler's limiters.
type HTTPServerHandle struct {
	*http.Server
	API *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	h.API.Close()
	return nil
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	routerHandle := do.MustInvoke[*RouterHandle](i)
	brokerHandle := do.MustInvoke[*BrokerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Auth:    do.MustInvoke[*service.AuthService](i),
		Users:   do.MustInvoke[*service.UserService](i),
		Groups:  do.MustInvoke[*service.GroupService](i),
		Beacons: do.MustInvoke[*service.BeaconService](i),
	}

	handler := api.NewServer(storeHandle.Store, services, routerHandle.Router, api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Bus:            brokerHandle.Broker,
		AuthRate: api.Rate{
			Requests: cfg.RateLimit.AuthRequests,
			Interval: cfg.RateLimit.AuthInterval,
			Burst:    cfg.RateLimit.AuthBurst,
		},
		LocationRate: api.Rate{
			Requests: cfg.RateLimit.LocationRequests,
			Interval: cfg.RateLimit.LocationInterval,
			Burst:    cfg.RateLimit.LocationBurst,
		},
	}, log.Logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	return &HTTPServerHandle{Server: srv, API: handler}, nil
}
