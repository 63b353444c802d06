// Package errs defines the error-kind taxonomy used across sentryscan so
// callers can branch on failure class with errors.Is instead of parsing
// error strings.
package errs

import "errors"

var (
	// ConfigInvalid marks a fatal configuration problem at startup.
	ConfigInvalid = errors.New("config invalid")
	// StorageInit marks a fatal failure to open or migrate the store.
	StorageInit = errors.New("storage init failed")
	// ProviderTransient marks a retryable upstream failure (network, 5xx, timeout).
	ProviderTransient = errors.New("provider transient error")
	// ProviderPermanent marks a non-retryable upstream failure (4xx, decode error).
	ProviderPermanent = errors.New("provider permanent error")
	// RateLimited marks an explicit upstream rate-limit signal (429).
	RateLimited = errors.New("rate limited")
	// CircuitOpen marks a breaker refusing a call.
	CircuitOpen = errors.New("circuit open")
	// DetectorFailure marks an unexpected internal detector error.
	DetectorFailure = errors.New("detector failure")
	// StoreWrite marks a failed batch insert.
	StoreWrite = errors.New("store write failed")
	// ExporterFailure marks a single export file failing to write.
	ExporterFailure = errors.New("exporter failure")
	// InvalidTTL marks a cache Set call with a non-positive TTL.
	InvalidTTL = errors.New("invalid ttl")
	// InvalidTz marks a civil datetime presented without a zone.
	InvalidTz = errors.New("invalid timezone")
)
