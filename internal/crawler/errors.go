package crawler

import "errors"

var (
	// ErrInvalidConfiguration marks configuration that must abort the run
	// before any crawling happens.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrPolicyUnavailable is returned when a host's robots.txt cannot be retrieved.
	ErrPolicyUnavailable = errors.New("robots policy unavailable")
	// ErrForbidden is returned when robots.txt disallows a URL for our user agent.
	ErrForbidden = errors.New("forbidden by robots policy")
	// ErrUnreachable covers timeouts, connection failures, and non-2xx responses.
	ErrUnreachable = errors.New("unreachable")
)
