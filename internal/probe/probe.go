// Package probe asks the API about the browser's session, forwarding the
// browser's cookies so the API sees the same credentials the browser holds.
package probe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoSession means the API answered and there is no valid session
var ErrNoSession = errors.New("no session")

// ErrorKind classifies probe failures
type ErrorKind int

const (
	// NetworkError: the call did not complete (transport, timeout, 5xx)
	NetworkError ErrorKind = iota + 1
	// ProtocolError: the API answered with something outside its contract
	ProtocolError
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkError:
		return "network_error"
	case ProtocolError:
		return "protocol_error"
	default:
		return "unknown_error"
	}
}

// Error is a failed probe
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or 0 if err is not a probe failure
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

// Identity is the authenticated user as reported by /api/session.
// The ID is opaque: the API may send it as a JSON number or a string.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (i *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Username *string         `json:"username"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := parseOpaqueID(raw.ID)
	if err != nil {
		return err
	}
	if raw.Username == nil {
		return fmt.Errorf("identity has no username")
	}
	i.ID = id
	i.Username = *raw.Username
	return nil
}

func parseOpaqueID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("identity has no id")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("identity has an empty id")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("identity id must be a string or number")
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", fmt.Errorf("identity id is not a valid number")
	}
	return n.String(), nil
}

// Profile is the provisioning status of the authenticated user
type Profile struct {
	IsNewUser bool
	// Anomalous is set when is_new_user was missing or malformed and
	// IsNewUser fell back to false.
	Anomalous bool
}
