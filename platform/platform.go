// Package platform declares the host capabilities the SDK depends on. A browser
// host, a CLI or a test supplies implementations at construction time.
package platform

import (
	"context"
	"fmt"
	"net/url"
)

// Storage is a durable string key-value store that survives full-page navigation.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Browser exposes the current page location and top-level navigation.
type Browser interface {
	CurrentURL() string
	Navigate(target string) error
}

// Alerter is implemented by browsers that can show a blocking message to the user.
type Alerter interface {
	Alert(message string)
}

// Origin returns scheme://host for rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
