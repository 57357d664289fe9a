package main

import (
	"context"
	"errors"
	"strings"
)

// errDryRun stops an item before the order is placed.
var errDryRun = errors.New("dry run: stopped before placing the order")

// Failure classes for the reason field of purchase failures.
const (
	failureTimeout       = "timeout"
	failureChallenge     = "challenge"
	failureNetwork       = "network"
	failureBrowserClosed = "browser_closed"
	failureUnknown       = "unknown"
)

func failureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case isBrowserClosedError(err):
		return failureBrowserClosed
	case isCaptchaError(err):
		return failureChallenge
	case isTimeoutError(err):
		return failureTimeout
	case isNetworkError(err):
		return failureNetwork
	default:
		return failureUnknown
	}
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timeout")
}

func isCaptchaError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "captcha") ||
		strings.Contains(errStr, "talon") ||
		strings.Contains(errStr, "security check")
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "net::ERR_") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host")
}

func isBrowserClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "websocket: close") ||
		strings.Contains(errStr, "Target closed")
}
