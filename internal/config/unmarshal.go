package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/animeswipe/animeswipe/internal/urlutil"
)

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

func parseOptionalValue(field string, raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.String(), nil
}

// UnmarshalJSON implements custom unmarshaling for APIConfig
func (a *APIConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		AllowedOrigins []string        `json:"allowedOrigins"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if a.Addr, err = parseOptionalValue("addr", raw.Addr); err != nil {
		return err
	}
	if a.BaseURL, err = parseOptionalValue("baseURL", raw.BaseURL); err != nil {
		return err
	}
	a.AllowedOrigins = raw.AllowedOrigins
	return nil
}

// UnmarshalJSON implements custom unmarshaling for WebConfig
func (w *WebConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr         json.RawMessage `json:"addr"`
		BaseURL      json.RawMessage `json:"baseURL"`
		APIURL       json.RawMessage `json:"apiURL"`
		ProbeTimeout string          `json:"probeTimeout"`
		PaintDelay   string          `json:"paintDelay"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if w.Addr, err = parseOptionalValue("addr", raw.Addr); err != nil {
		return err
	}
	if w.BaseURL, err = parseOptionalValue("baseURL", raw.BaseURL); err != nil {
		return err
	}
	if w.APIURL, err = parseOptionalValue("apiURL", raw.APIURL); err != nil {
		return err
	}
	if w.ProbeTimeout, err = parseDuration("probeTimeout", raw.ProbeTimeout); err != nil {
		return err
	}
	if w.PaintDelay, err = parseDuration("paintDelay", raw.PaintDelay); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (o *AuthConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		MALClientID     json.RawMessage `json:"malClientId"`
		MALClientSecret json.RawMessage `json:"malClientSecret"`
		RedirectURI     json.RawMessage `json:"redirectUri"`
		AuthorizeURL    string          `json:"authorizeUrl"`
		TokenURL        string          `json:"tokenUrl"`
		UserInfoURL     string          `json:"userInfoUrl"`
		JWTSecret       json.RawMessage `json:"jwtSecret"`
		EncryptionKey   json.RawMessage `json:"encryptionKey"`
		SessionDuration string          `json:"sessionDuration"`
		LoginTimeout    string          `json:"loginTimeout"`
		LoginRateLimit  int             `json:"loginRateLimit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.AuthorizeURL = raw.AuthorizeURL
	o.TokenURL = raw.TokenURL
	o.UserInfoURL = raw.UserInfoURL
	o.LoginRateLimit = raw.LoginRateLimit

	// The client ID is not a secret to MAL, but operators tend to keep it
	// next to the secret, so both forms are accepted.
	clientID, err := parseOptionalValue("malClientId", raw.MALClientID)
	if err != nil {
		return err
	}
	o.MALClientID = Secret(clientID)

	if raw.MALClientSecret != nil {
		if o.MALClientSecret, err = ParseSecretValue(raw.MALClientSecret); err != nil {
			return fmt.Errorf("parsing malClientSecret: %w", err)
		}
	}
	if raw.JWTSecret != nil {
		if o.JWTSecret, err = ParseSecretValue(raw.JWTSecret); err != nil {
			return fmt.Errorf("parsing jwtSecret: %w", err)
		}
	}
	if raw.EncryptionKey != nil {
		if o.EncryptionKey, err = ParseSecretValue(raw.EncryptionKey); err != nil {
			return fmt.Errorf("parsing encryptionKey: %w", err)
		}
	}

	if o.RedirectURI, err = parseOptionalValue("redirectUri", raw.RedirectURI); err != nil {
		return err
	}
	if o.SessionDuration, err = parseDuration("sessionDuration", raw.SessionDuration); err != nil {
		return err
	}
	if o.LoginTimeout, err = parseDuration("loginTimeout", raw.LoginTimeout); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                StorageKind     `json:"kind"`
		Path                json.RawMessage `json:"path"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		CleanupInterval     string          `json:"cleanupInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	var err error
	if s.Path, err = parseOptionalValue("path", raw.Path); err != nil {
		return err
	}
	if s.GCPProject, err = parseOptionalValue("gcpProject", raw.GCPProject); err != nil {
		return err
	}
	if s.CleanupInterval, err = parseDuration("cleanupInterval", raw.CleanupInterval); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills every optional field that was left empty.
func (c *Config) applyDefaults() {
	if c.Web.APIURL == "" {
		c.Web.APIURL = c.API.BaseURL
	}
	if len(c.API.AllowedOrigins) == 0 && c.Web.BaseURL != "" {
		if origin, err := urlutil.Origin(c.Web.BaseURL); err == nil {
			c.API.AllowedOrigins = []string{origin}
		}
	}
	if c.Web.ProbeTimeout == 0 {
		c.Web.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Web.PaintDelay == 0 {
		c.Web.PaintDelay = DefaultPaintDelay
	}
	if c.Auth.AuthorizeURL == "" {
		c.Auth.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.Auth.TokenURL == "" {
		c.Auth.TokenURL = DefaultTokenURL
	}
	if c.Auth.UserInfoURL == "" {
		c.Auth.UserInfoURL = DefaultUserInfoURL
	}
	if c.Auth.SessionDuration == 0 {
		c.Auth.SessionDuration = DefaultSessionDuration
	}
	if c.Auth.LoginTimeout == 0 {
		c.Auth.LoginTimeout = DefaultLoginTimeout
	}
	if c.Auth.LoginRateLimit == 0 {
		c.Auth.LoginRateLimit = DefaultLoginRateLimit
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindMemory
	}
	if c.Storage.Kind == StorageKindSQLite && c.Storage.Path == "" {
		c.Storage.Path = "animeswipe.db"
	}
	if c.Storage.FirestoreDatabase == "" {
		c.Storage.FirestoreDatabase = "(default)"
	}
	if c.Storage.FirestoreCollection == "" {
		c.Storage.FirestoreCollection = "animeswipe"
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = DefaultCleanupInterval
	}
}
