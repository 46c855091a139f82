package common

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
		return strings.TrimSpace(ip)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// AtoiDefault converts value to an integer, falling back when parsing fails.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// Page describes pagination bounds derived from query parameters.
type Page struct {
	Number int
	Limit  int
	Offset int
}

// ParsePage reads page/limit query parameters with defaults and a hard cap.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	number := AtoiDefault(r.URL.Query().Get("page"), 1)
	if number < 1 {
		number = 1
	}
	limit := AtoiDefault(r.URL.Query().Get("limit"), defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Page{Number: number, Limit: limit, Offset: (number - 1) * limit}
}
