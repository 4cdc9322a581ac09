package metrics

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// Network error categories recorded in Outcome.Reason.
const (
	ReasonTimeout           = "timeout"
	ReasonConnectionRefused = "connection_refused"
	ReasonConnectionReset   = "connection_reset"
	ReasonDNS               = "dns"
	ReasonCanceled          = "canceled"
	ReasonBodyRead          = "body_read"
	ReasonOther             = "other"
)

var friendlyReasons = map[string]string{
	ReasonTimeout:           "Request timeout",
	ReasonConnectionRefused: "Connection refused",
	ReasonConnectionReset:   "Connection reset",
	ReasonDNS:               "DNS lookup failed",
	ReasonCanceled:          "Request canceled",
	ReasonBodyRead:          "Response body read failed",
	ReasonOther:             "Transport error",
}

// ErrorReason buckets a transport error into a stable category.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ReasonConnectionReset
	}
	// Some platforms surface resets only through the message text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return ReasonConnectionRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return ReasonConnectionReset
	}
	return ReasonOther
}

// FriendlyReason returns a human-friendly label for a network error category.
func FriendlyReason(reason string) string {
	if label, ok := friendlyReasons[strings.TrimSpace(reason)]; ok {
		return label
	}
	if strings.TrimSpace(reason) == "" {
		return "Unknown error"
	}
	return reason
}
