package cvsdk

import (
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "conveyor"

// normalizeKey converts a baseURL into a stable key name for keyring
// storage. Trailing slashes are trimmed and the string lowercased so
// https://example.com/ and https://example.com share one entry.
func normalizeKey(baseURL string) string {
	s := strings.TrimSpace(baseURL)
	s = strings.TrimRight(s, "/")
	s = strings.ToLower(s)
	return s
}

// SaveAPIKey stores the API key in the OS keyring under the normalized
// baseURL key.
func SaveAPIKey(baseURL, apiKey string) error {
	return keyring.Set(keyringService, normalizeKey(baseURL), apiKey)
}

// LoadAPIKey retrieves the API key stored for the given baseURL. If none
// is found the underlying keyring error is returned; callers that treat a
// missing key as "unauthenticated" can ignore it.
func LoadAPIKey(baseURL string) (string, error) {
	return keyring.Get(keyringService, normalizeKey(baseURL))
}

// DeleteAPIKey removes the stored key for the given baseURL. Convenience
// for logout flows.
func DeleteAPIKey(baseURL string) error {
	return keyring.Delete(keyringService, normalizeKey(baseURL))
}
