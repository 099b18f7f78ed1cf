package cfg

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != "8080" {
		t.Errorf("Port = %q; want 8080", c.Port)
	}
	if c.PasteStorage != StorageInline {
		t.Errorf("PasteStorage = %q; want inline", c.PasteStorage)
	}
	if c.MaxContentSizeKB != 64 {
		t.Errorf("MaxContentSizeKB = %d; want 64", c.MaxContentSizeKB)
	}
	if c.PasteTimeRestrictUnauth != 120*time.Second {
		t.Errorf("PasteTimeRestrictUnauth = %v; want 2m", c.PasteTimeRestrictUnauth)
	}
	if c.Location == nil {
		t.Error("Location not resolved")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PASTE_STORAGE", "file")
	t.Setenv("STORAGE_ROOT", "/var/pastry")
	t.Setenv("SELF_DESTROY_AFTER_VIEWS", "5")
	t.Setenv("PASTE_TIME_RESTRICT_UNAUTH", "30")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.PasteStorage != StorageFile {
		t.Errorf("PasteStorage = %q; want file", c.PasteStorage)
	}
	if c.SelfDestroyAfterViews != 5 {
		t.Errorf("SelfDestroyAfterViews = %d; want 5", c.SelfDestroyAfterViews)
	}
	if c.PasteTimeRestrictUnauth != 30*time.Second {
		t.Errorf("PasteTimeRestrictUnauth = %v; want 30s", c.PasteTimeRestrictUnauth)
	}
	if len(c.TrustedProxies) != 2 || c.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("TrustedProxies = %v", c.TrustedProxies)
	}
}

func validCfg(t *testing.T) *Cfg {
	t.Helper()
	t.Setenv("PEPPER", strings.Repeat("p", 32))
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return c
}

func TestValidate(t *testing.T) {
	c := validCfg(t)
	if err := Validate(c); err != nil {
		t.Fatalf("Validate on defaults failed: %v", err)
	}

	c = validCfg(t)
	c.PasteStorage = "s3"
	if err := Validate(c); err == nil {
		t.Error("accepted unknown storage mode")
	}

	c = validCfg(t)
	c.SlugLength = 3
	if err := Validate(c); err == nil {
		t.Error("accepted slug length below 6")
	}

	c = validCfg(t)
	c.TrustedProxies = []string{"not-an-ip"}
	if err := Validate(c); err == nil {
		t.Error("accepted invalid trusted proxy")
	}

	c = validCfg(t)
	c.Environment = "production"
	if err := Validate(c); err == nil {
		t.Error("accepted production without metrics credentials")
	}

	c = validCfg(t)
	c.Pepper = NewSecret("short")
	if err := Validate(c); err == nil {
		t.Error("accepted short pepper")
	}
}

func TestSecretRedaction(t *testing.T) {
	s := NewSecret("hunter2")
	if s.String() != "***REDACTED***" {
		t.Errorf("String = %q; secret leaked", s.String())
	}
	if s.Value() != "hunter2" {
		t.Errorf("Value = %q", s.Value())
	}
	s.Wipe()
	if strings.Contains(s.Value(), "hunter") {
		t.Error("Wipe left secret bytes intact")
	}
}
