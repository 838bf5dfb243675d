// Package status classifies HTTP status codes and decides retry eligibility.
package status

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
)

// Category is a coarse grouping of HTTP status codes by leading digit.
type Category string

// Supported categories.
const (
	Informational Category = "informational"
	Success       Category = "success"
	Redirect      Category = "redirect"
	ClientError   Category = "client-error"
	ServerError   Category = "server-error"
	Unknown       Category = "unknown"
)

// DefaultRetryCodes are retried when no override is configured.
var DefaultRetryCodes = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Classify maps a status code to exactly one Category.
func Classify(code int) Category {
	switch {
	case code >= 100 && code < 200:
		return Informational
	case code >= 200 && code < 300:
		return Success
	case code >= 300 && code < 400:
		return Redirect
	case code >= 400 && code < 500:
		return ClientError
	case code >= 500 && code < 600:
		return ServerError
	default:
		return Unknown
	}
}

// IsRateLimited reports whether the code is an explicit rate-limit signal.
func IsRateLimited(code int) bool {
	return code == http.StatusTooManyRequests
}

// RetryCodes is the configured set of retry-eligible status codes.
type RetryCodes map[int]struct{}

// NewRetryCodes builds a set from codes. An empty input yields an empty set,
// which disables status-based retries entirely.
func NewRetryCodes(codes ...int) RetryCodes {
	set := make(RetryCodes, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Contains reports whether code is retry-eligible.
func (r RetryCodes) Contains(code int) bool {
	_, ok := r[code]
	return ok
}

// Codes returns the set as a sorted slice.
func (r RetryCodes) Codes() []int {
	out := make([]int, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// IsRetryable reports whether code is in the configured retry set.
func IsRetryable(code int, codes RetryCodes) bool {
	return codes.Contains(code)
}

// Key renders a status code as a report map key. Zero means no response was
// received and lands in the "error" bucket.
func Key(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

var descriptions = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "Created",
	http.StatusNoContent:           "No Content",
	http.StatusMovedPermanently:    "Moved Permanently",
	http.StatusFound:               "Found",
	http.StatusNotModified:         "Not Modified",
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusBadGateway:          "Bad Gateway",
	http.StatusServiceUnavailable:  "Service Unavailable",
	http.StatusGatewayTimeout:      "Gateway Timeout",
}

// Describe returns a short human label for code.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	switch Classify(code) {
	case Informational:
		return "Info"
	case Success:
		return "Success"
	case Redirect:
		return "Redirect"
	case ClientError:
		return "Client Error"
	case ServerError:
		return "Server Error"
	default:
		return "Unknown"
	}
}

const ansiReset = "\033[0m"

// color picks the ANSI color used for code on the console.
func color(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "\033[95m"
	case code == http.StatusNotModified:
		return "\033[96m"
	}
	switch Classify(code) {
	case Informational:
		return "\033[94m"
	case Success:
		return "\033[92m"
	case Redirect:
		return "\033[93m"
	case ClientError:
		return "\033[91m"
	case ServerError:
		return "\033[31;1m"
	default:
		return "\033[90m"
	}
}

// Format renders a colored one-line console label such as "HTTP 404 (Not Found)".
func Format(code int) string {
	return fmt.Sprintf("%sHTTP %d (%s)%s", color(code), code, Describe(code), ansiReset)
}

// Hint returns an extra console line for codes that usually need operator attention.
func Hint(code int) string {
	switch code {
	case http.StatusTooManyRequests:
		return "Rate limit detected, backing off and retrying."
	case http.StatusForbidden:
		return "Access forbidden; the server may require authentication or block scrapers."
	case http.StatusServiceUnavailable:
		return "Service unavailable; the server may be overloaded or under maintenance."
	default:
		return ""
	}
}
