package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for an in-memory document.
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	validateListenerStructure(rawConfig, "api", result)
	validateListenerStructure(rawConfig, "web", result)
	if web, ok := rawConfig["web"].(map[string]any); ok {
		for _, field := range []string{"probeTimeout", "paintDelay"} {
			validateDurationField(web, field, "web."+field, result)
		}
	}
	validateAuthStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateListenerStructure(rawConfig map[string]any, section string, result *ValidationResult) {
	listener, ok := rawConfig[section].(map[string]any)
	if !ok {
		result.addError(section, "%s field is required and must be an object", section)
		return
	}
	for _, field := range []string{"addr", "baseURL"} {
		if _, ok := listener[field]; !ok {
			result.addError(section+"."+field, "%s.%s is required", section, field)
		}
	}
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	for _, field := range []string{"malClientId", "redirectUri", "jwtSecret", "encryptionKey"} {
		if _, ok := auth[field]; !ok {
			result.addError("auth."+field, "%s is required", field)
		}
	}
	for _, field := range secretFields {
		value, ok := auth[field]
		if !ok {
			continue
		}
		if verr := validateEnvVarReference(value, field, "auth."+field); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}
	if _, ok := auth["malClientSecret"]; !ok {
		result.addWarning("auth.malClientSecret", "no client secret configured, only MAL apps of type 'other' work without one")
	}

	for _, field := range []string{"sessionDuration", "loginTimeout"} {
		validateDurationField(auth, field, "auth."+field, result)
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "no storage configured, defaulting to memory")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		result.addWarning("storage.kind", "memory storage loses users and sessions on restart")
	case StorageKindSQLite:
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "invalid storage kind '%s' - use memory, sqlite or firestore", kind)
	}
	validateDurationField(storage, "cleanupInterval", "storage.cleanupInterval", result)
}

func validateDurationField(section map[string]any, field, path string, result *ValidationResult) {
	value, ok := section[field]
	if !ok {
		return
	}
	s, isString := value.(string)
	if !isString {
		result.addError(path, "%s must be a duration string like \"10s\"", field)
		return
	}
	if d, err := time.ParseDuration(s); err != nil {
		result.addError(path, "invalid duration %q: %v", s, err)
	} else if d < 0 {
		result.addError(path, "%s cannot be negative", field)
	}
}

func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This keeps secrets out of config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

// Sample returns a starter config document for -config-init.
func Sample() map[string]any {
	return map[string]any{
		"version": VersionPrefix,
		"api": map[string]any{
			"addr":           ":8000",
			"baseURL":        "http://localhost:8000",
			"allowedOrigins": []string{"http://localhost:5173"},
		},
		"web": map[string]any{
			"addr":         ":5173",
			"baseURL":      "http://localhost:5173",
			"probeTimeout": "10s",
			"paintDelay":   "150ms",
		},
		"auth": map[string]any{
			"malClientId":     map[string]string{"$env": "MAL_CLIENT_ID"},
			"malClientSecret": map[string]string{"$env": "MAL_CLIENT_SECRET"},
			"redirectUri":     "http://localhost:8000/oauth/callback",
			"jwtSecret":       map[string]string{"$env": "JWT_SECRET"},
			"encryptionKey":   map[string]string{"$env": "ENCRYPTION_KEY"},
			"sessionDuration": "168h",
			"loginTimeout":    "10m",
		},
		"storage": map[string]any{
			"kind":            "sqlite",
			"path":            "animeswipe.db",
			"cleanupInterval": "1m",
		},
	}
}
