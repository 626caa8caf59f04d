package model

import (
	"context"
	"errors"
	"strings"
)

// ClassifyError wraps a provider SDK error into a ProviderError.
//
// SDKs differ in their typed errors, so classification works on the
// message text and context errors. context.Canceled is returned unchanged.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	pe := &ProviderError{Provider: provider, Code: "api_error", Cause: err}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code, pe.Retryable = "timeout", true
	case containsAny(msg, "insufficient_quota", "quota", "billing"):
		pe.Code = "quota_exceeded"
	case containsAny(msg, "rate limit", "429", "too many requests", "resource_exhausted"):
		pe.Code, pe.Retryable = "rate_limited", true
	case containsAny(msg, "invalid api key", "incorrect api key", "401", "403", "unauthorized", "permission_denied"):
		pe.Code = "invalid_api_key"
	case containsAny(msg, "500", "502", "503", "504", "529", "overloaded", "internal server error", "service unavailable"):
		pe.Code, pe.Retryable = "server_error", true
	case containsAny(msg, "connection", "timeout", "network", "eof"):
		pe.Code, pe.Retryable = "network_error", true
	}
	return pe
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
