package secretmanager

import (
	"os"

	"github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager",
	fx.Provide(ProvideVault),
)

// ProvideVault builds a Vault client from the standard VAULT_* environment
// variables. Without VAULT_ADDR the client is nil and config keeps the
// secrets from its file/env sources.
func ProvideVault() (*vault.Client, error) {
	if os.Getenv("VAULT_ADDR") == "" {
		return nil, nil
	}

	client, err := vault.New(vault.WithEnvironment())
	if err != nil {
		zap.L().Error("failed to initialize vault client", zap.Error(err))
		return nil, err
	}
	return client, nil
}
