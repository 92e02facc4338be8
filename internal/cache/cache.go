// Package cache holds short code -> original URL entries with a sliding expiration:
// every hit pushes the expiry out by the full TTL again.
package cache

import "time"

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "short:"
)

func key(code string) string {
	return keyPrefix + code
}
