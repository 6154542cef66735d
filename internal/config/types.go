package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// VersionPrefix is the config version this build understands. Variants such as
// "animeswipe/v1-local" are accepted.
const VersionPrefix = "animeswipe/v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the persistence backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindSQLite    StorageKind = "sqlite"
	StorageKindFirestore StorageKind = "firestore"
)

// Config is the root of the config file.
//
// Secrets are always written as {"$env": "VAR_NAME"} references and are
// resolved when the file is loaded. Plain strings are rejected for secret
// fields so that credentials never end up committed next to the config.
type Config struct {
	Version string        `json:"version"`
	API     APIConfig     `json:"api"`
	Web     WebConfig     `json:"web"`
	Auth    AuthConfig    `json:"auth"`
	Storage StorageConfig `json:"storage"`
}

// APIConfig configures the backend listener that owns the OAuth round-trip
// and the session cookie.
type APIConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`
	// AllowedOrigins are the browser origins allowed to call /api with
	// credentials. The web baseURL is always included.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// WebConfig configures the page service.
type WebConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`
	// APIURL is where the page service reaches the API. Defaults to api.baseURL
	// but can point at an internal address.
	APIURL       string        `json:"apiURL,omitempty"`
	ProbeTimeout time.Duration `json:"-"`
	PaintDelay   time.Duration `json:"-"`
}

// AuthConfig holds the MyAnimeList client and session secrets.
type AuthConfig struct {
	MALClientID     Secret        `json:"-"`
	MALClientSecret Secret        `json:"-"`
	RedirectURI     string        `json:"redirectUri"`
	AuthorizeURL    string        `json:"authorizeUrl,omitempty"`
	TokenURL        string        `json:"tokenUrl,omitempty"`
	UserInfoURL     string        `json:"userInfoUrl,omitempty"`
	JWTSecret       Secret        `json:"-"`
	EncryptionKey   Secret        `json:"-"`
	SessionDuration time.Duration `json:"-"`
	LoginTimeout    time.Duration `json:"-"`
	// LoginRateLimit is the number of /oauth starts allowed per client IP per minute.
	LoginRateLimit int `json:"loginRateLimit,omitempty"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	Path                string        `json:"path,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	CleanupInterval     time.Duration `json:"-"`
}

const (
	DefaultProbeTimeout    = 10 * time.Second
	DefaultPaintDelay      = 150 * time.Millisecond
	DefaultSessionDuration = 7 * 24 * time.Hour
	DefaultLoginTimeout    = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
	DefaultLoginRateLimit  = 20

	DefaultAuthorizeURL = "https://myanimelist.net/v1/oauth2/authorize"
	DefaultTokenURL     = "https://myanimelist.net/v1/oauth2/token"
	DefaultUserInfoURL  = "https://api.myanimelist.net/v2/users/@me"
)

// RawConfigValue is a config value that may be a literal or an env reference
type RawConfigValue struct {
	value string
	isEnv bool
}

func (r *RawConfigValue) String() string { return r.value }

// FromEnv reports whether the value was resolved from an environment variable
func (r *RawConfigValue) FromEnv() bool { return r.isEnv }

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately.
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value, isEnv: true}, nil
}

// ParseSecretValue is ParseConfigValue for fields that must come from the environment.
func ParseSecretValue(raw json.RawMessage) (Secret, error) {
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", err
	}
	if !parsed.FromEnv() {
		return "", fmt.Errorf(`must use {"$env": "VAR_NAME"} reference`)
	}
	return Secret(parsed.value), nil
}
