package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/broker"
	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/logger"
)

// BrokerHandle wraps the pub/sub broker with shutdown capability.
type BrokerHandle struct {
	*broker.Broker
}

// Shutdown implements do.Shutdownable.
func (h *BrokerHandle) Shutdown() error {
	return h.Close()
}

// ProvideBroker provides the broker selected by configuration.
func ProvideBroker(i do.Injector) (*BrokerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	brokerCfg := broker.DefaultConfig()
	brokerCfg.Driver = cfg.Broker.Driver
	brokerCfg.URL = cfg.Broker.URL
	brokerCfg.Host = cfg.Broker.Host
	brokerCfg.Port = cfg.Broker.Port
	brokerCfg.MaxReconnects = cfg.Broker.MaxReconnects
	brokerCfg.ReconnectWait = cfg.Broker.ReconnectWait

	b, err := broker.New(brokerCfg, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Broker connected", "driver", cfg.Broker.Driver)

	return &BrokerHandle{Broker: b}, nil
}

// RouterHandle wraps the fan-out router. The supervisor runs it; Shutdown
// flushes queued events and closes open feeds.
type RouterHandle struct {
	*fanout.Router
	drainTimeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *RouterHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.drainTimeout)
	defer cancel()
	h.Router.Shutdown(ctx)
	return nil
}

// ProvideRouter provides the fan-out router.
func ProvideRouter(i do.Injector) (*RouterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	brokerHandle := do.MustInvoke[*BrokerHandle](i)

	router := fanout.NewRouter(brokerHandle.Broker, fanout.Config{
		Subject:      cfg.Feed.Subject,
		QueueSize:    cfg.Feed.QueueSize,
		ClientBuffer: cfg.Feed.ClientBuffer,
		Heartbeat:    cfg.Feed.Heartbeat,
	}, log.Logger)

	return &RouterHandle{Router: router, drainTimeout: cfg.Server.ShutdownTimeout}, nil
}
