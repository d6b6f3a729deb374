package permissions

import "testing"

func TestIsHostAllowed(t *testing.T) {
	tests := []struct {
		name    string
		perms   Permissions
		url     string
		allowed bool
	}{
		{
			name:    "wildcard allows everything",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("*").Build(),
			url:     "https://anything.example/",
			allowed: true,
		},
		{
			name:    "exact match",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("api.example.com").Build(),
			url:     "https://api.example.com/v1",
			allowed: true,
		},
		{
			name:    "exact match denies other host",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("api.example.com").Build(),
			url:     "https://evil.example/",
			allowed: false,
		},
		{
			name:    "S7 wildcard admits subdomain",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("*.example.com").Build(),
			url:     "https://api.example.com/",
			allowed: true,
		},
		{
			name:    "S7 wildcard admits another subdomain",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("*.example.com").Build(),
			url:     "https://www.example.com/",
			allowed: true,
		},
		{
			name:    "S7 wildcard denies bare suffix",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("*.example.com").Build(),
			url:     "https://example.com/",
			allowed: false,
		},
		{
			name:    "S7 wildcard denies lookalike domain",
			perms:   NewBuilder().WithHTTPEnabled(true).AllowHTTPHost("*.example.com").Build(),
			url:     "https://example.com.attacker.tld/",
			allowed: false,
		},
		{
			name:    "http disabled denies everything",
			perms:   NewBuilder().AllowHTTPHost("*").Build(),
			url:     "https://api.example.com/",
			allowed: false,
		},
		{
			name:    "None denies everything",
			perms:   None(),
			url:     "https://api.example.com/",
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.perms.IsHostAllowed(tt.url); got != tt.allowed {
				t.Errorf("IsHostAllowed(%q) = %v, want %v", tt.url, got, tt.allowed)
			}
		})
	}
}

func TestIsPrivateAddress(t *testing.T) {
	tests := []struct {
		url     string
		private bool
	}{
		{"http://localhost/", true},
		{"http://127.0.0.1/", true},
		{"http://127.5.5.5:8080/", true},
		{"http://[::1]/", true},
		{"http://10.0.0.5/", true},
		{"http://172.16.0.1/", true},
		{"http://192.168.1.1/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://169.254.1.1/", true},
		{"http://metadata.google.internal/", true},
		{"https://api.example.com/", false},
		{"https://1.1.1.1/", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsPrivateAddress(tt.url); got != tt.private {
				t.Errorf("IsPrivateAddress(%q) = %v, want %v", tt.url, got, tt.private)
			}
		})
	}
}

func TestAll(t *testing.T) {
	p := All()
	if !p.HTTPEnabled() || !p.LoggingEnabled() {
		t.Fatal("All() must enable http and logging")
	}
	if !p.IsHostAllowed("https://anywhere.example/") {
		t.Fatal("All() must allow any host")
	}
}
