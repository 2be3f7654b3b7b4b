package client

import (
	"fmt"
	"strings"
)

// authHeaders builds the bearer authorization shared by every provider
// endpoint.
func authHeaders(apiKey string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", apiKey),
	}
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "****"
	}
	prefix := ""
	if i := strings.IndexByte(apiKey, '-'); i > 0 && i < 4 {
		prefix = apiKey[:i+1]
	}
	return prefix + "..." + apiKey[len(apiKey)-4:]
}
