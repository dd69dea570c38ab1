package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultAuthType is substituted when an endpoint's authentication
// configuration leaves the scheme unspecified.
const DefaultAuthType = "oauth2"

// Fingerprint computes the deterministic hash over an authentication
// configuration with all empty fields removed and the default scheme
// substituted. Two endpoints with equal fingerprints resolve to the same
// authenticator; the fingerprint is the session deduplication key.
func Fingerprint(cfg AuthConfig) (string, error) {
	payload, err := json.Marshal(canonicalAuthMap(cfg))
	if err != nil {
		return "", fmt.Errorf("core: marshal auth config for fingerprint: %w", err)
	}
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:]), nil
}

// SessionID derives the stable authenticator/session identifier from a
// fingerprint.
func SessionID(fingerprint string) string {
	fingerprint = strings.TrimSpace(fingerprint)
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return "sess_" + fingerprint
}

// canonicalAuthMap builds the hashing payload. encoding/json emits map keys in
// sorted order, which keeps the digest deterministic.
func canonicalAuthMap(cfg AuthConfig) map[string]any {
	payload := map[string]any{}
	put := func(key, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			payload[key] = value
		}
	}
	put("type", cfg.Type)
	if _, ok := payload["type"]; !ok {
		payload["type"] = DefaultAuthType
	}
	put("grant_type", cfg.GrantType)
	put("client_id", cfg.ClientID)
	put("client_secret", cfg.ClientSecret)
	put("token_url", cfg.TokenURL)
	put("issuer", cfg.Issuer)
	put("scope", cfg.Scope)
	put("audience", cfg.Audience)
	put("token", cfg.Token)

	if len(cfg.Extra) > 0 {
		extra := map[string]string{}
		for key, value := range cfg.Extra {
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if key == "" || value == "" {
				continue
			}
			extra[key] = value
		}
		if len(extra) > 0 {
			payload["extra"] = extra
		}
	}
	return payload
}

// SplitScopes splits a scope string on whitespace, deduplicates and sorts.
func SplitScopes(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
