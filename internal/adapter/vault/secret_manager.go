package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager resolves deployment credentials (Stripe key, SendGrid key,
// relay pairing secret) from a Vault KV v2 mount. All secrets for one
// deployment live under a single path, keyed by name.
type SecretManager struct {
	client *api.Client
	mount  string
	path   string
}

func NewSecretManager(address, token, mount, path string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	if mount == "" {
		mount = "secret"
	}
	if path == "" {
		path = "caterpos"
	}

	return &SecretManager{client: client, mount: mount, path: path}, nil
}

func (sm *SecretManager) Get(ctx context.Context, name string) (string, error) {
	secret, err := sm.client.Logical().ReadWithContext(ctx, sm.mount+"/data/"+sm.path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret path %s/%s not found", sm.mount, sm.path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret payload at %s/%s", sm.mount, sm.path)
	}
	value, ok := data[name].(string)
	if !ok {
		return "", fmt.Errorf("secret %s not found", name)
	}
	return value, nil
}
