// Package cache provides the content-addressed audio store used by the proxy.
// Entries are keyed by a SHA-256 fingerprint of the synthesis inputs and live
// on disk until the whole cache is cleared; there is no TTL or eviction.
package cache
