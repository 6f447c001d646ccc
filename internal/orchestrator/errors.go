package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/saga/internal/narrative"
)

// ErrMissingCredential is wrapped by AuthenticationError when no secret is
// configured for the requested provider.
var ErrMissingCredential = errors.New("no API key configured")

// AuthenticationError reports that a provider rejected, or would reject, the
// configured credential. The player should be asked for a new key.
type AuthenticationError struct {
	Provider narrative.Provider
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UnsupportedProviderError reports a provider id with no registered adapter.
type UnsupportedProviderError struct {
	Provider narrative.Provider
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", string(e.Provider))
}

// IsAuthError reports whether err is, or wraps, an AuthenticationError.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// authPhrases mark credential failures inside error messages.
var authPhrases = []string{
	"api_key_invalid",
	"api key not valid",
	"permission",
	"not found",
	"invalid x-api-key",
	"incorrect api key",
	"invalid api key",
	"unauthorized",
}

// ClassifyError reports whether a provider failure means the credential is
// bad. 401, 403 and 404 are credential failures for every provider. Gemini
// reports invalid keys as 400 with the reason in the body, so its message is
// always inspected; other providers' messages only when no status is known.
func ClassifyError(desc narrative.ErrorDescription) bool {
	switch desc.StatusCode {
	case 401, 403, 404:
		return true
	}
	if desc.StatusCode != 0 && desc.Provider != narrative.ProviderGemini {
		return false
	}

	text := strings.ToLower(desc.Status + " " + desc.Message)
	for _, phrase := range authPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
