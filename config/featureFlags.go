package config

import (
	"os"
	"strings"
)

// StrictStockPolicy rejects mutations that would drive a resource amount or
// cost negative. The default (lenient) matches historical behavior: the
// mutation is applied and a warning is logged.
//
// Set via env:
// - STOCK_POLICY=strict
func StrictStockPolicy() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("STOCK_POLICY")), "strict")
}

// NotificationsEnabled gates outbound storefront notifications. When false,
// notification records are still written to the outbox but never dispatched,
// which is useful for local development and tests.
//
// Set via env:
// - NOTIFICATIONS_ENABLED=true
func NotificationsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFICATIONS_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
