package profile_rate_limiter

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	_ Extractor = &httpHeaderExtractor{}
	_ Extractor = ExtractorFunc(nil)
)

// Extractor extracts a user or session id from an HTTP request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

// ExtractorFunc adapts a function, such as a session lookup, to Extractor.
type ExtractorFunc func(r *http.Request) (string, error)

func (f ExtractorFunc) Extract(r *http.Request) (string, error) {
	return f(r)
}

type httpHeaderExtractor struct {
	headers []string
}

// Extract extracts values from HTTP headers to build the key.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for a header we should return an error
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
	}

	return strings.Join(values, "-"), nil
}

// NewHttpHeaderExtractor creates an Extractor reading trusted headers set by
// an upstream auth layer, e.g. X-User-ID.
func NewHttpHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

// ClientIdentifierResolver derives the per-client part of a rate limit key.
type ClientIdentifierResolver struct {
	// UserID resolves the signed-in user or session. Optional.
	UserID Extractor
}

// Resolve returns "user:<id>" when useUserID is set and a user id is
// available, otherwise "ip:<addr>" taken from the connection address, the
// first X-Forwarded-For entry or X-Real-IP, in that order. Requests with none
// of those share the UnknownClient bucket.
func (c *ClientIdentifierResolver) Resolve(r *http.Request, useUserID bool) string {
	if useUserID && c != nil && c.UserID != nil {
		if id, err := c.UserID.Extract(r); err == nil && strings.TrimSpace(id) != "" {
			return "user:" + strings.TrimSpace(id)
		}
	}

	if ip := clientIP(r); ip != "" {
		return "ip:" + ip
	}

	return UnknownClient
}

func clientIP(r *http.Request) string {
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return addr
		}
		if host != "" {
			return host
		}
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
