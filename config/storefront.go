package config

import (
	"net/http"
	"os"
	"strings"
	"time"
)

// StorefrontConfig holds the outbound storefront (CMS/CRM) endpoint settings.
// The storefront is notified of price, prime-cost and order-status changes
// via HTTP basic-auth POSTs; see workflow/notificationDispatcher.go.
type StorefrontConfig struct {
	BaseURL  string
	Username string
	Password string
}

const storefrontUpdatePath = "/ajax/tsenaobnov.php"

// GetStorefrontConfig reads storefront settings from env:
// - STOREFRONT_URL (base, no trailing slash needed)
// - STOREFRONT_USER / STOREFRONT_PASSWORD (basic auth)
func GetStorefrontConfig() StorefrontConfig {
	return StorefrontConfig{
		BaseURL:  strings.TrimRight(strings.TrimSpace(os.Getenv("STOREFRONT_URL")), "/"),
		Username: os.Getenv("STOREFRONT_USER"),
		Password: os.Getenv("STOREFRONT_PASSWORD"),
	}
}

// UpdateURL is the endpoint receiving price / prime-cost / status payloads.
func (c StorefrontConfig) UpdateURL() string {
	if c.BaseURL == "" {
		return ""
	}
	return c.BaseURL + storefrontUpdatePath
}

var storefrontHTTPClient = &http.Client{Timeout: 15 * time.Second}

// GetStorefrontHTTPClient returns the shared client used for storefront
// notifications. Shared so connection pooling works across dispatch batches.
func GetStorefrontHTTPClient() *http.Client {
	return storefrontHTTPClient
}
