package profile_rate_limiter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

var (
	_ http.Handler = &httpRateLimiterHandler{}
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"

	rateLimitedCode    = "RATE_LIMITED"
	rateLimitedMessage = "you have sent too many requests to this service, slow down please"
)

// RateLimiterConfig holds configuration for rate limiting.
type RateLimiterConfig struct {
	Limiter *Limiter
	// Profile is resolved through the limiter's registry when the handler
	// is built.
	Profile   string
	UseUserID bool
	Resolver  *ClientIdentifierResolver
}

type httpRateLimiterHandler struct {
	handler  http.Handler
	limiter  *Limiter
	profile  Profile
	config   *RateLimiterConfig
	resolver *ClientIdentifierResolver
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler and performs rate limiting before forwarding the
// request to it. An unknown profile name is reported here, at wiring time.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *RateLimiterConfig) (http.Handler, error) {
	h, err := newHTTPRateLimiterHandler(originalHandler, config)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHTTPRateLimiterHandler(originalHandler http.Handler, config *RateLimiterConfig) (*httpRateLimiterHandler, error) {
	if config == nil || config.Limiter == nil {
		return nil, errors.New("rate limiter config requires a limiter")
	}

	profile, err := config.Limiter.Registry().Lookup(config.Profile)
	if err != nil {
		return nil, err
	}

	resolver := config.Resolver
	if resolver == nil {
		resolver = &ClientIdentifierResolver{}
	}

	return &httpRateLimiterHandler{
		handler:  originalHandler,
		limiter:  config.Limiter,
		profile:  profile,
		config:   config,
		resolver: resolver,
	}, nil
}

// Middleware is NewHTTPRateLimiterHandler in the func(http.Handler) http.Handler
// shape routers such as chi expect.
func Middleware(config *RateLimiterConfig) (func(http.Handler) http.Handler, error) {
	base, err := newHTTPRateLimiterHandler(nil, config)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		h := *base
		h.handler = next
		return &h
	}, nil
}

// ServeHTTP performs rate limiting and forwards the request if allowed.
func (h *httpRateLimiterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := h.resolver.Resolve(r, h.config.UseUserID)

	result := h.limiter.Check(r.Context(), clientID, h.profile)

	w.Header().Set(headerLimit, strconv.FormatInt(result.Limit, 10))
	w.Header().Set(headerRemaining, strconv.FormatInt(result.Remaining, 10))
	w.Header().Set(headerReset, strconv.FormatInt(result.ResetAt.Unix(), 10))

	// Too many requests
	if !result.Allowed() {
		w.Header().Set(headerRetryAfter, strconv.FormatInt(retryAfterSeconds(result.ResetAt, h.limiter.now()), 10))
		h.writeResponse(w, r, http.StatusTooManyRequests, errorBody{
			Success: false,
			Error:   errorDetail{Code: rateLimitedCode, Message: rateLimitedMessage},
		})
		return
	}

	h.handler.ServeHTTP(w, r)
}

func (h *httpRateLimiterHandler) writeResponse(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.limiter.logger.ErrorContext(r.Context(), "failed to write body to HTTP request", slog.Any("error", err))
	}
}

// retryAfterSeconds rounds up so clients never retry before the slot frees.
func retryAfterSeconds(resetAt, now time.Time) int64 {
	wait := resetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	seconds := int64(wait / time.Second)
	if wait%time.Second != 0 {
		seconds++
	}
	return seconds
}
