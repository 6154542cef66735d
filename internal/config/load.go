package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/animeswipe/animeswipe/internal/log"
)

var secretFields = []string{"malClientSecret", "jwtSecret", "encryptionKey"}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory config document.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	config.applyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects secrets written inline, before any env lookup
func validateRawConfig(rawConfig map[string]any) error {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		return fmt.Errorf("auth section is required")
	}
	for _, name := range secretFields {
		value, exists := auth[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	if err := validateBaseURL("api.baseURL", config.API.BaseURL); err != nil {
		return err
	}
	if config.Web.Addr == "" {
		return fmt.Errorf("web.addr is required")
	}
	if err := validateBaseURL("web.baseURL", config.Web.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("web.apiURL", config.Web.APIURL); err != nil {
		return err
	}
	if config.Web.ProbeTimeout < 0 || config.Web.PaintDelay < 0 {
		return fmt.Errorf("web durations cannot be negative")
	}
	if config.Web.PaintDelay >= config.Web.ProbeTimeout {
		log.LogWarn("web.paintDelay is not shorter than web.probeTimeout, the loading page will never be shown")
	}

	if err := validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
		log.LogWarn("Using memory storage, users and sessions are lost on restart")
	case StorageKindSQLite:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage.path is required when using sqlite storage")
		}
	case StorageKindFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unsupported storage kind: %s", config.Storage.Kind)
	}
	if config.Storage.CleanupInterval < 0 {
		return fmt.Errorf("storage.cleanupInterval cannot be negative")
	}
	if config.Storage.CleanupInterval > config.Auth.LoginTimeout {
		log.LogWarn("Login request cleanup interval is greater than the login timeout")
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

func validateAuthConfig(auth *AuthConfig) error {
	if auth.MALClientID == "" {
		return fmt.Errorf("malClientId is required")
	}
	if err := validateBaseURL("redirectUri", auth.RedirectURI); err != nil {
		return err
	}
	if len(auth.JWTSecret) < 32 {
		return fmt.Errorf("jwtSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(auth.JWTSecret))
	}
	if len(auth.EncryptionKey) < 32 {
		return fmt.Errorf("encryptionKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(auth.EncryptionKey))
	}
	if auth.SessionDuration < 0 || auth.LoginTimeout < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if auth.LoginRateLimit < 0 {
		return fmt.Errorf("loginRateLimit cannot be negative")
	}
	return nil
}
