package ratelimit

import (
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
)

// ClientIdentifier derives a stable per-client key from request headers.
// Proxy-provided addresses are preferred in trust order; when no address
// header is present the identifier falls back to a hash of request
// fingerprint headers so anonymous clients still share a bucket per agent.
func ClientIdentifier(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	fingerprint := r.Header.Get("CF-Ray") + "|" + r.Header.Get("User-Agent")
	if fingerprint != "|" {
		return "unknown:" + hashBase36(fingerprint)
	}
	return "unknown"
}

// hashBase36 returns the FNV-1a 32-bit hash of s in base 36.
func hashBase36(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
