package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// RequestKey builds a deterministic cache key for a request from its
// method, path, and query string. Query parameters are sorted so that
// equivalent URLs with reordered parameters share an entry.
func RequestKey(r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(':')
	b.WriteString(r.URL.Path)

	if query := canonicalQuery(r.URL.Query()); query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}

	return b.String()
}

// RequestKeyForRoute scopes a request key to a route so routes with
// overlapping paths never share entries, and folds in the values of
// the vary headers so requests differing in any of them get separate
// entries.
func RequestKeyForRoute(routeName string, r *http.Request, varyHeaders []string) string {
	key := routeName + ":" + RequestKey(r)
	if len(varyHeaders) == 0 {
		return key
	}

	names := make([]string, 0, len(varyHeaders))
	for _, name := range varyHeaders {
		names = append(names, http.CanonicalHeaderKey(name))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(key)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(r.Header.Values(name), ","))
	}
	return b.String()
}

// canonicalQuery renders query values in sorted key order.
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		values := query[key]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, key+"="+v)
		}
	}

	return strings.Join(parts, "&")
}

// HashKey hashes a key to a fixed length hex string. Useful when keys
// may exceed backend limits.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// SanitizeKey replaces characters that are unsafe in cache keys.
func SanitizeKey(key string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"\n", "",
		"\r", "",
		"\t", "",
	)
	return replacer.Replace(key)
}
