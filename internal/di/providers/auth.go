package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/auth"
	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
)

// ProvideIssuer provides the bearer token issuer. A PASETO issuer without a
// configured key loads or generates one under the data path.
func ProvideIssuer(i do.Injector) (auth.Issuer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	issuerCfg := auth.IssuerConfig{
		Kind:      cfg.Auth.Issuer,
		PasetoKey: cfg.Auth.PasetoKey,
		JWTSecret: cfg.Auth.JWTSecret,
	}
	if issuerCfg.Kind != auth.IssuerJWT && issuerCfg.PasetoKey == "" {
		key, err := auth.LoadOrGenerateKey(cfg.Store.KeyPath())
		if err != nil {
			return nil, err
		}
		issuerCfg.PasetoKey = key
	}

	issuer, err := auth.NewIssuer(issuerCfg)
	if err != nil {
		return nil, err
	}

	log.Info("Token issuer ready",
		"issuer", cfg.Auth.Issuer,
		"token_ttl", cfg.Auth.TokenTTL,
		"reset_ttl", cfg.Auth.ResetTTL,
	)

	return issuer, nil
}

// ProvideHasher provides the credential hasher.
func ProvideHasher(do.Injector) (auth.Hasher, error) {
	return auth.Argon2Hasher{}, nil
}
