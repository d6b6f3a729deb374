// Package permissions implements the capability set gating outbound HTTP
// and logging host functions: allow-list matching, SSRF screening, and
// rate limiting, all immutable once built.
package permissions

import (
	"net"
	"net/url"
	"strings"
)

// Permissions is an immutable capability set. Zero value denies everything.
type Permissions struct {
	allowedHTTPHosts map[string]struct{}
	httpEnabled      bool
	maxHTTPRequests  uint32
	loggingEnabled   bool
}

// None returns the deny-everything default.
func None() Permissions {
	return Permissions{}
}

// All returns a development-only permission set that allows any outbound
// host and enables logging with a generous request cap. Never use in a
// multi-tenant deployment.
func All() Permissions {
	return Builder{}.
		WithHTTPEnabled(true).
		WithLoggingEnabled(true).
		WithMaxHTTPRequests(1000).
		AllowHTTPHost("*").
		Build()
}

// HTTPEnabled reports whether outbound HTTP is enabled at all.
func (p Permissions) HTTPEnabled() bool { return p.httpEnabled }

// LoggingEnabled reports whether the logging host function is installed.
func (p Permissions) LoggingEnabled() bool { return p.loggingEnabled }

// MaxHTTPRequests returns the configured per-invocation request ceiling.
func (p Permissions) MaxHTTPRequests() uint32 { return p.maxHTTPRequests }

// IsHostAllowed extracts the authority from rawURL and matches it against
// the allow-list using, in order: "*" (allow all), exact match, "*.suffix"
// wildcard. Anything else is denied. Matches SPEC_FULL.md §4.3.
func (p Permissions) IsHostAllowed(rawURL string) bool {
	if !p.httpEnabled {
		return false
	}
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	if _, ok := p.allowedHTTPHosts["*"]; ok {
		return true
	}
	if _, ok := p.allowedHTTPHosts[host]; ok {
		return true
	}
	for pattern := range p.allowedHTTPHosts {
		suffix, ok := strings.CutPrefix(pattern, "*.")
		if !ok {
			continue
		}
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// IsPrivateAddress reports whether rawURL's host component is a loopback,
// private, link-local, or otherwise infrastructure-internal address, per
// SPEC_FULL.md §4.3. It performs no DNS resolution: only string/literal-IP
// inspection, to avoid a DNS-rebinding bypass between check and dial.
func IsPrivateAddress(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return true
	}
	host = strings.ToLower(host)

	switch host {
	case "localhost", "metadata.google.internal", "169.254.169.254":
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Not a literal IP: only the fixed hostnames above are screened
		// without resolution, per the no-DNS-lookup invariant.
		return false
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	return false
}

// hostOf extracts the hostname (no port) from a URL string, tolerating a
// bare host[:port] without a scheme.
func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Hostname()
	}
	// Fallback: strip a trailing :port from a bare authority.
	if h, _, err := net.SplitHostPort(rawURL); err == nil {
		return h
	}
	return rawURL
}

// Builder produces an immutable Permissions via a fluent configuration
// object. The zero value builder denies everything, matching None().
type Builder struct {
	allowedHTTPHosts []string
	httpEnabled      bool
	maxHTTPRequests  uint32
	loggingEnabled   bool
}

// NewBuilder returns a fresh, deny-everything Builder.
func NewBuilder() Builder {
	return Builder{}
}

// AllowHTTPHost adds a host pattern (exact, "*.suffix", or "*") to the
// allow-list.
func (b Builder) AllowHTTPHost(pattern string) Builder {
	b.allowedHTTPHosts = append(b.allowedHTTPHosts, pattern)
	return b
}

// WithHTTPEnabled toggles whether outbound HTTP is permitted at all.
func (b Builder) WithHTTPEnabled(enabled bool) Builder {
	b.httpEnabled = enabled
	return b
}

// WithMaxHTTPRequests sets the per-invocation request ceiling.
func (b Builder) WithMaxHTTPRequests(n uint32) Builder {
	b.maxHTTPRequests = n
	return b
}

// WithLoggingEnabled toggles whether the logging host function is
// installed.
func (b Builder) WithLoggingEnabled(enabled bool) Builder {
	b.loggingEnabled = enabled
	return b
}

// Build finalizes the builder into an immutable Permissions value.
func (b Builder) Build() Permissions {
	hosts := make(map[string]struct{}, len(b.allowedHTTPHosts))
	for _, h := range b.allowedHTTPHosts {
		hosts[h] = struct{}{}
	}
	return Permissions{
		allowedHTTPHosts: hosts,
		httpEnabled:      b.httpEnabled,
		maxHTTPRequests:  b.maxHTTPRequests,
		loggingEnabled:   b.loggingEnabled,
	}
}
