package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

// Provider resolves named secrets: the paste content key, the hash
// pepper. Selection order at startup: Vault if VAULT_ADDR is set, AWS
// if AWS_REGION is set, else plain environment variables.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

func NewProvider(ctx context.Context) (Provider, error) {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		p, err := newVaultProvider(ctx)
		if err == nil {
			return p, nil
		}
		if os.Getenv("SECRETS_REQUIRE_PRIMARY") == "true" {
			return nil, errors.Wrap(err, "vault provider unavailable")
		}
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		p, err := newAWSProvider(ctx)
		if err == nil {
			return p, nil
		}
		if os.Getenv("SECRETS_REQUIRE_PRIMARY") == "true" {
			return nil, errors.Wrap(err, "aws provider unavailable")
		}
	}
	if os.Getenv("SECRETS_REQUIRE_PRIMARY") == "true" {
		return nil, errors.New("SECRETS_REQUIRE_PRIMARY=true but no provider available (checked Vault, AWS)")
	}
	return envProvider{}, nil
}

type vaultProvider struct {
	client     *vault.Client
	secretPath string
}

func newVaultProvider(ctx context.Context) (*vaultProvider, error) {
	cfg := vault.DefaultConfig()
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tokenFile := os.Getenv("VAULT_TOKEN_FILE"); tokenFile != "" {
		tokenBytes, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read VAULT_TOKEN_FILE: %w", err)
		}
		client.SetToken(strings.TrimSpace(string(tokenBytes)))
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, fmt.Errorf("vault health check failed: %w", err)
	}
	secretPath := os.Getenv("VAULT_SECRET_PATH")
	if secretPath == "" {
		secretPath = "secret/data/pastry"
	}
	return &vaultProvider{client: client, secretPath: secretPath}, nil
}

func (v *vaultProvider) GetSecret(ctx context.Context, name string) (string, error) {
	path := fmt.Sprintf("%s/%s", v.secretPath, name)
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("vault: invalid secret format")
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.New("vault: value not found")
	}
	return value, nil
}

type awsProvider struct {
	kmsClient *kms.Client
	smClient  *secretsmanager.Client
}

func newAWSProvider(ctx context.Context) (*awsProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(os.Getenv("AWS_REGION")),
	)
	if err != nil {
		return nil, err
	}
	return &awsProvider{
		kmsClient: kms.NewFromConfig(cfg),
		smClient:  secretsmanager.NewFromConfig(cfg),
	}, nil
}

// GetSecret reads from Secrets Manager. Values prefixed "kms:" hold a
// base64 KMS ciphertext and are decrypted before being returned, so a
// key can be stored wrapped by the account master key.
func (a *awsProvider) GetSecret(ctx context.Context, name string) (string, error) {
	result, err := a.smClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if result.SecretString == nil {
		return "", errors.New("secret is binary, not string")
	}
	value := *result.SecretString
	if !strings.HasPrefix(value, "kms:") {
		return value, nil
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "kms:"))
	if err != nil {
		return "", fmt.Errorf("secret %s: invalid kms ciphertext encoding: %w", name, err)
	}
	out, err := a.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", fmt.Errorf("aws kms decrypt of %s failed: %w", name, err)
	}
	return string(out.Plaintext), nil
}

type envProvider struct{}

func (envProvider) GetSecret(ctx context.Context, name string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	val, exists := os.LookupEnv(name)
	if !exists {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	return val, nil
}
