package domain

import "errors"

var (
	ErrMalformedUpstreamData = errors.New("malformed upstream data")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrNoSnapshot            = errors.New("no fee snapshot available")
	ErrInvalidIntent         = errors.New("invalid transaction intent")
	ErrInvalidPolicy         = errors.New("invalid policy")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrRateLimited           = errors.New("rate limited")
)
