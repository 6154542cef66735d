// Package loginerr turns the error code that the API appends to the landing
// URL after a failed OAuth round-trip into a message for the user.
package loginerr

import (
	"net/url"
	"sync"
)

// Code is a redirect error code carried as ?error= on the landing route
type Code string

const (
	Cancelled     Code = "cancelled"
	MissingParams Code = "missing_params"
	InvalidState  Code = "invalid_state"
	LongWait      Code = "long_wait"

	// Emitted by the API for failures that have no dedicated message.
	ProviderError Code = "provider_error"
	LoginFailed   Code = "login_failed"
)

// FallbackMessage is shown for any code without a dedicated message
const FallbackMessage = "Login failed."

var messages = map[Code]string{
	Cancelled:     "You cancelled the MAL login.",
	MissingParams: "Something went wrong. Try logging in again.",
	InvalidState:  "Invalid session, please retry.",
	LongWait:      "Login took too long. Please try again.",
}

// Message returns the user-facing text for a code.
func Message(code Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return FallbackMessage
}

// Translate extracts the error code from a raw query string. It reports false
// when no error code is present.
func Translate(rawQuery string) (string, bool) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil && len(values) == 0 {
		return "", false
	}
	code := values.Get("error")
	if code == "" {
		return "", false
	}
	return Message(Code(code)), true
}

// Notifier shows each query's message at most once over its lifetime.
// One Notifier belongs to one landing view.
type Notifier struct {
	mu    sync.Mutex
	shown map[string]bool
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{shown: make(map[string]bool)}
}

// Notify returns the message for rawQuery the first time it is seen.
func (n *Notifier) Notify(rawQuery string) (string, bool) {
	msg, ok := Translate(rawQuery)
	if !ok {
		return "", false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.shown[rawQuery] {
		return "", false
	}
	n.shown[rawQuery] = true
	return msg, true
}
