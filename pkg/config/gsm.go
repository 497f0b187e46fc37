package config

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// LoadFromSecretManager loads a whole relay configuration stored as one JSON secret.
// Missing sync tunables fall back to DefaultSyncConfig.
func LoadFromSecretManager(ctx context.Context, projectID, secretName string) (*Config, error) {
	secretData, err := accessSecretVersionCtx(ctx, fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName))
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	return parseConfigJSON([]byte(secretData))
}

func parseConfigJSON(data []byte) (*Config, error) {
	config := Config{Sync: DefaultSyncConfig()}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret data: %w", err)
	}
	return &config, nil
}

// accessSecretVersion accesses the payload for the given secret version if it exists.
func accessSecretVersion(name string) (string, error) {
	return accessSecretVersionCtx(context.Background(), name)
}

func accessSecretVersionCtx(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	defer client.Close()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	}

	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}
