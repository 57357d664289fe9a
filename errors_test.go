package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFailureClass(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "Wrapped deadline",
			err:      fmt.Errorf("waiting for order confirmation: %w", context.DeadlineExceeded),
			expected: failureTimeout,
		},
		{
			name:     "Captcha text",
			err:      errors.New("hCaptcha challenge shown"),
			expected: failureChallenge,
		},
		{
			name:     "Talon security check",
			err:      errors.New("talon: security check failed"),
			expected: failureChallenge,
		},
		{
			name:     "Chrome net error",
			err:      errors.New("navigation failed: net::ERR_CONNECTION_CLOSED"),
			expected: failureNetwork,
		},
		{
			name:     "Connection reset",
			err:      errors.New("read tcp: connection reset by peer"),
			expected: failureNetwork,
		},
		{
			name:     "Browser closed",
			err:      errors.New("websocket: close 1006 (abnormal closure)"),
			expected: failureBrowserClosed,
		},
		{
			name:     "Cancelled run",
			err:      fmt.Errorf("placing order: %w", context.Canceled),
			expected: failureBrowserClosed,
		},
		{
			name:     "Other error",
			err:      errors.New("element not interactable"),
			expected: failureUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := failureClass(tt.err)
			if result != tt.expected {
				t.Errorf("failureClass() = %q, want %q for error: %v", result, tt.expected, tt.err)
			}
		})
	}
}

func TestIsTimeoutError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Deadline", context.DeadlineExceeded, true},
		{"Timeout text", errors.New("rod: timeout"), true},
		{"Other error", errors.New("some other error"), false},
		{"Nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := isTimeoutError(tt.err); result != tt.expected {
				t.Errorf("isTimeoutError() = %v, want %v for error: %v", result, tt.expected, tt.err)
			}
		})
	}
}

func TestIsBrowserClosedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Target closed", errors.New("Target closed"), true},
		{"Canceled", context.Canceled, true},
		{"Deadline", context.DeadlineExceeded, false},
		{"Nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := isBrowserClosedError(tt.err); result != tt.expected {
				t.Errorf("isBrowserClosedError() = %v, want %v for error: %v", result, tt.expected, tt.err)
			}
		})
	}
}
