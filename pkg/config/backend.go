package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BackendConfig points the storefront at the REST backend.
type BackendConfig struct {
	BaseURL    string           `koanf:"baseurl"`
	Timeout    time.Duration    `koanf:"timeout"`
	Resilience ResilienceConfig `koanf:"resilience"`
}

// String returns a string representation of the backend client configuration.
func (c *BackendConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Backend Client ---\n")
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(c.Resilience.String())
	return b.String()
}

func (c *BackendConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("backend base url is not configured")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base url: %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("backend timeout is not configured")
	}
	return c.Resilience.Validate()
}
