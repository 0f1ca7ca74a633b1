package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// VaultConfig locates a KV secret whose keys are exported as environment
// variables before configuration is loaded.
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	// Overwrite replaces variables already present in the environment.
	Overwrite bool
}

// VaultResult counts what ApplyVaultSecrets did.
type VaultResult struct {
	Path    string
	Loaded  int
	Skipped int
}

// VaultConfigFromEnv reads VAULT_* variables. KV v2 and a 5s timeout are the defaults.
func VaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     envOr("VAULT_MOUNT", "secret"),
		Path:      envOr("VAULT_PATH", "fly2any/prewarm"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil && v > 0 {
		cfg.KVVersion = v
	}
	if v, err := time.ParseDuration(os.Getenv("VAULT_TIMEOUT")); err == nil && v > 0 {
		cfg.Timeout = v
	}
	return cfg
}

type kvResponse struct {
	Data json.RawMessage `json:"data"`
}

type kvV2Data struct {
	Data map[string]interface{} `json:"data"`
}

// ApplyVaultSecrets fetches the configured secret and sets each key as an
// environment variable. It is a no-op when Vault is disabled.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" || cfg.Mount == "" {
		return result, apperrors.NewValidationError("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_MOUNT, VAULT_PATH)")
	}

	req := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Addr, "/")).
		SetTimeout(cfg.Timeout).
		R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.SetHeader("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := req.Get(secretPath(cfg))
	if err != nil {
		return result, apperrors.NewUnavailableError("vault unreachable", err)
	}
	if resp.IsError() {
		return result, apperrors.NewExternalError(
			fmt.Sprintf("vault returned %d for %s: %s", resp.StatusCode(), cfg.Path, strings.TrimSpace(resp.String())), nil)
	}

	data, err := decodeSecret(resp.Body(), cfg.KVVersion)
	if err != nil {
		return result, err
	}

	for key, value := range data {
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped++
			continue
		}
		if err := os.Setenv(key, stringify(value)); err != nil {
			return result, apperrors.NewInternalError(fmt.Sprintf("failed to set %s", key), err)
		}
		result.Loaded++
	}
	return result, nil
}

func secretPath(cfg VaultConfig) string {
	mount := strings.Trim(cfg.Mount, "/")
	path := strings.TrimLeft(cfg.Path, "/")
	if cfg.KVVersion == 1 {
		return fmt.Sprintf("/v1/%s/%s", mount, path)
	}
	return fmt.Sprintf("/v1/%s/data/%s", mount, path)
}

func decodeSecret(body []byte, kvVersion int) (map[string]interface{}, error) {
	var resp kvResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
		return nil, apperrors.NewExternalError("vault response missing data", err)
	}

	if kvVersion == 1 {
		var data map[string]interface{}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, apperrors.NewExternalError("vault KV v1 data is not an object", err)
		}
		return data, nil
	}

	var inner kvV2Data
	if err := json.Unmarshal(resp.Data, &inner); err != nil || inner.Data == nil {
		return nil, apperrors.NewExternalError("vault response missing data for KV v2", err)
	}
	return inner.Data, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
