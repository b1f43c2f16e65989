// Package secrets loads deployment secrets (JWT signing keys, database and
// Redis passwords) from a Vault KV mount into the process environment
// before configuration is read.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/recursiadx/pkg/retry"
)

// VaultConfig describes where the secrets live
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	Overwrite bool
	// Required keys must be present in the environment after loading
	Required []string
}

// VaultResult summarises one load
type VaultResult struct {
	Enabled bool
	Path    string
	Loaded  int
	Skipped int
}

// StatusError is a non-2xx answer from Vault
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vault returned %d: %s", e.StatusCode, e.Body)
}

type kvV1Response struct {
	Data map[string]interface{} `json:"data"`
}

type kvV2Response struct {
	Data struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

// LoadVaultConfigFromEnv reads VAULT_* variables. VAULT_REQUIRED is a comma
// separated list of keys that must resolve.
func LoadVaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     envOr("VAULT_MOUNT", "secret"),
		Path:      envOr("VAULT_PATH", "recursiadx/api"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil {
		cfg.KVVersion = v
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_TIMEOUT_MS")); err == nil && v > 0 {
		cfg.Timeout = time.Duration(v) * time.Millisecond
	}
	for _, key := range strings.Split(os.Getenv("VAULT_REQUIRED"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			cfg.Required = append(cfg.Required, key)
		}
	}
	return cfg
}

// ApplyVaultSecrets copies every key at the configured path into the
// environment. Existing variables win unless Overwrite is set.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return result, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	url, err := buildVaultURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return result, err
	}

	client := &http.Client{Timeout: cfg.Timeout}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.Retryable = func(err error) bool {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode >= http.StatusInternalServerError
		}
		return true
	}

	var data map[string]interface{}
	err = retry.Do(ctx, retryCfg, func() error {
		var fetchErr error
		data, fetchErr = fetch(ctx, client, url, cfg)
		return fetchErr
	})
	if err != nil {
		return result, err
	}

	for key, value := range data {
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped++
			continue
		}
		if err := os.Setenv(key, stringifyVaultValue(value)); err != nil {
			return result, err
		}
		result.Loaded++
	}

	var missing []string
	for _, key := range cfg.Required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return result, fmt.Errorf("required secrets missing after vault load: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

func fetch(ctx context.Context, client *http.Client, url string, cfg VaultConfig) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if cfg.KVVersion == 1 {
		var payload kvV1Response
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode vault response: %w", err)
		}
		if payload.Data == nil {
			return nil, errors.New("vault response missing data for KV v1")
		}
		return payload.Data, nil
	}

	var payload kvV2Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	if payload.Data.Data == nil {
		return nil, errors.New("vault response missing data for KV v2")
	}
	return payload.Data.Data, nil
}

func buildVaultURL(addr, mount, path string, kvVersion int) (string, error) {
	addr = strings.TrimRight(addr, "/")
	mount = strings.Trim(mount, "/")
	path = strings.TrimLeft(path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount, and path must be set")
	}
	if kvVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

func stringifyVaultValue(value interface{}) string {
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
			return fmt.Sprintf("%v", v)
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
