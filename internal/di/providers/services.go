package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/auth"
	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/service"
)

// ProvideGroupService provides the group service.
func ProvideGroupService(i do.Injector) (*service.GroupService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	routerHandle := do.MustInvoke[*RouterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewGroupService(storeHandle.Store, routerHandle.Router, log.Logger), nil
}

// ProvideBeaconService provides the beacon service.
func ProvideBeaconService(i do.Injector) (*service.BeaconService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	groups := do.MustInvoke[*service.GroupService](i)
	routerHandle := do.MustInvoke[*RouterHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBeaconService(storeHandle.Store, groups, routerHandle.Router, indexHandle.SearchIndex, log.Logger), nil
}

// ProvideUserService provides the user service.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	beacons := do.MustInvoke[*service.BeaconService](i)
	hasher := do.MustInvoke[auth.Hasher](i)
	routerHandle := do.MustInvoke[*RouterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewUserService(storeHandle.Store, beacons, hasher, routerHandle.Router, log.Logger), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	hasher := do.MustInvoke[auth.Hasher](i)
	issuer := do.MustInvoke[auth.Issuer](i)
	mailer := do.MustInvoke[*MailerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, hasher, issuer, mailer.Async, service.AuthConfig{
		TokenTTL: cfg.Auth.TokenTTL,
		ResetTTL: cfg.Auth.ResetTTL,
	}, log.Logger), nil
}
