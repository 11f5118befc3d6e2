package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// RedactEndpoint keeps scheme and host of an RPC url and replaces path, query
// and credentials (where providers put API keys) with a short hash so two
// endpoints on the same host stay distinguishable in logs and metrics.
func RedactEndpoint(endpoint string) string {
	hasher := sha256.New()
	hasher.Write([]byte(endpoint))
	hash := hex.EncodeToString(hasher.Sum(nil))[:12]

	parsedURL, err := url.Parse(endpoint)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return hash
	}

	return parsedURL.Scheme + "://" + parsedURL.Host + "#" + hash
}
