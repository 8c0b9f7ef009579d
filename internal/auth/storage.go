package auth

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// snapshot is a parsed browser local-storage dump. Values are kept as the
// raw strings the browser stored; entries whose values were serialized JSON
// stay serialized so they can be injected back verbatim.
type snapshot struct {
	entries map[string]string
}

// parseSnapshot parses a captured local-storage JSON dump. An empty input
// is not an error (the source simply is not configured); unparseable input
// is MalformedStoredCredential, which callers treat as "source unavailable".
func parseSnapshot(raw string) (*snapshot, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return nil, model.NewRunError(model.ErrMalformedCredential, err,
			"storage snapshot is not a JSON object")
	}

	entries := make(map[string]string, len(outer))
	for k, v := range outer {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			entries[k] = s
			continue
		}
		// Non-string values (objects, numbers) are stored re-serialized.
		entries[k] = string(v)
	}
	return &snapshot{entries: entries}, nil
}

// authTokenFields is the probe order for a bearer token inside the
// snapshot's auth entry.
var authTokenFields = []string{"access_token", "token"}

// bearerToken extracts a bearer token from the snapshot's auth entry, if
// one is present. The entry may itself be a JSON document or an already
// structured object; either way the token fields are probed in order.
func (s *snapshot) bearerToken() string {
	for _, val := range s.authEntries() {
		var obj map[string]any
		if err := json.Unmarshal([]byte(val), &obj); err != nil {
			continue
		}
		for _, field := range authTokenFields {
			if tok, ok := obj[field].(string); ok && tok != "" {
				return tok
			}
		}
	}
	return ""
}

// authEntries returns the snapshot entries that may hold auth state, in a
// fixed order: the exact "auth" key first, then keys containing "auth" in
// sorted order. Entry selection must not vary between runs.
func (s *snapshot) authEntries() []string {
	var keys []string
	for k := range s.entries {
		if k != "auth" && strings.Contains(strings.ToLower(k), "auth") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var vals []string
	if v, ok := s.entries["auth"]; ok {
		vals = append(vals, v)
	}
	for _, k := range keys {
		vals = append(vals, s.entries[k])
	}
	return vals
}
