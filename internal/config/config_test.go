package config

import (
	"strings"
	"testing"
)

func TestResolvedAuthMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit mode wins", Config{Env: "development", AuthMode: "jwt"}, "jwt"},
		{"development inferred", Config{Env: "development"}, "development"},
		{"production infers jwt", Config{Env: "production"}, "jwt"},
		{"staging infers jwt", Config{Env: "staging"}, "jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolvedAuthMode(); got != tt.want {
				t.Errorf("ResolvedAuthMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	secret := strings.Repeat("s", 32)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"dev without secret", Config{Env: "development"}, false},
		{"production with secret", Config{Env: "production", JWTSecret: secret}, false},
		{"production without secret", Config{Env: "production"}, true},
		{"production forced dev mode", Config{Env: "production", AuthMode: "development"}, true},
		{"jwt mode with short secret", Config{Env: "production", JWTSecret: "short"}, true},
		{"unknown mode", Config{Env: "production", AuthMode: "saml", JWTSecret: secret}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
