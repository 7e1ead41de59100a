package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTP.Addr != ":8080" || c.HTTP.BodyLimit != 1<<20 {
		t.Errorf("http defaults = %+v", c.HTTP)
	}
	if c.Auth.TokenTTL != 24*time.Hour || c.Auth.AdminUsername != "admin" {
		t.Errorf("auth defaults = %+v", c.Auth)
	}
	if c.Database.MaxConns != 10 || !c.Metrics.Enabled || c.Log.Format != "json" {
		t.Errorf("defaults = %+v", c)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "erp.yaml")
	yaml := `
http:
  addr: ":9090"
database:
  url: postgres://file/db
auth:
  jwt_secret: from-file
  token_ttl: 2h
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ERP_DATABASE_URL", "postgres://env/db")
	t.Setenv("ERP_NATS_URL", "nats://localhost:4222")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTP.Addr != ":9090" || c.Auth.JWTSecret != "from-file" || c.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.Database.URL != "postgres://env/db" {
		t.Errorf("env must override file, got %q", c.Database.URL)
	}
	if c.NATS.URL != "nats://localhost:4222" || c.Log.Level != "debug" {
		t.Errorf("nats/log = %q %q", c.NATS.URL, c.Log.Level)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	var c Config
	c.Auth.TokenTTL = time.Hour
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors for an empty config")
	}
	for _, want := range []string{"ERP_DATABASE_URL", "ERP_AUTH_JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	c.Database.URL = "postgres://x"
	c.Auth.JWTSecret = "s"
	c.Auth.TokenTTL = 0
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "token_ttl") {
		t.Errorf("zero ttl err = %v", err)
	}
}
