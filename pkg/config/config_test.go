package config

import (
	"strings"
	"testing"
	"time"
)

const validDescriptor = `
project: shop
environment: prod
location: westeurope
image:
  name: shop-api
  tag: "1.4.2"
  context_dir: ./api
database:
  name: shopdb
  admin_user: shopadmin
  admin_password_env: SHOP_DB_PASSWORD
  schema_path: ./schema.sql
tags:
  team: platform
`

func TestParseValidDescriptor(t *testing.T) {
	cfg, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Project != "shop" || cfg.Environment != "prod" {
		t.Errorf("identity fields = %q/%q", cfg.Project, cfg.Environment)
	}
	if cfg.Image.Tag != "1.4.2" {
		t.Errorf("Tag = %q", cfg.Image.Tag)
	}
	if cfg.Tags["team"] != "platform" {
		t.Errorf("Tags = %v", cfg.Tags)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Health.Path != "/healthz" {
		t.Errorf("Health.Path = %q, want /healthz", cfg.Health.Path)
	}
	if cfg.Health.Timeout.Std() != 5*time.Minute {
		t.Errorf("Health.Timeout = %v, want 5m", cfg.Health.Timeout)
	}
	if cfg.Image.Port != 8080 {
		t.Errorf("Image.Port = %d, want 8080", cfg.Image.Port)
	}
	if cfg.Retry.PropagationAttempts != 6 {
		t.Errorf("PropagationAttempts = %d, want 6", cfg.Retry.PropagationAttempts)
	}
	if cfg.Retry.BaseDelay.Std() != 20*time.Second || cfg.Retry.MaxDelay.Std() != 240*time.Second {
		t.Errorf("backoff = %v/%v, want 20s/240s", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
}

func TestParseHumanReadableDurations(t *testing.T) {
	descriptor := validDescriptor + `
health:
  path: /ready
  timeout: 90s
retry:
  propagation_attempts: 3
  base_delay: 5s
  max_delay: 1m
`
	cfg, err := Parse([]byte(descriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Health.Timeout.Std() != 90*time.Second {
		t.Errorf("Health.Timeout = %v", cfg.Health.Timeout.Std())
	}
	if cfg.Retry.PropagationAttempts != 3 {
		t.Errorf("PropagationAttempts = %d", cfg.Retry.PropagationAttempts)
	}
	if cfg.Retry.BaseDelay.Std() != 5*time.Second || cfg.Retry.MaxDelay.Std() != time.Minute {
		t.Errorf("backoff = %v/%v", cfg.Retry.BaseDelay.Std(), cfg.Retry.MaxDelay.Std())
	}

	if _, err := Parse([]byte(validDescriptor + "\nhealth:\n  timeout: ninety\n")); err == nil {
		t.Error("expected an error for an unparseable duration")
	}
}

func TestParseRejectsBadDescriptors(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
	}{
		{"unknown environment", func(s string) string { return strings.Replace(s, "environment: prod", "environment: qa", 1) }},
		{"missing project", func(s string) string { return strings.Replace(s, "project: shop", "", 1) }},
		{"missing image tag", func(s string) string { return strings.Replace(s, `tag: "1.4.2"`, "", 1) }},
		{"missing password env", func(s string) string { return strings.Replace(s, "admin_password_env: SHOP_DB_PASSWORD", "", 1) }},
		{"not yaml", func(string) string { return "{{{" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.edit(validDescriptor))); err == nil {
				t.Error("expected a parse or validation error")
			}
		})
	}
}

func TestAdminPassword(t *testing.T) {
	cfg, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := cfg.AdminPassword(); err == nil {
		t.Error("expected an error while the variable is unset")
	}

	t.Setenv("SHOP_DB_PASSWORD", "s3cret")
	pw, err := cfg.AdminPassword()
	if err != nil {
		t.Fatalf("AdminPassword: %v", err)
	}
	if pw != "s3cret" {
		t.Errorf("password = %q", pw)
	}
}

func TestImageRef(t *testing.T) {
	cfg, err := Parse([]byte(validDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := cfg.ImageRef("shopacr.registry.example")
	if got != "shopacr.registry.example/shop-api:1.4.2" {
		t.Errorf("ImageRef = %q", got)
	}
}
