package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8791 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8791)
	}
	if cfg.Curve.Base != 100 || cfg.Curve.Exponent != 1.8 {
		t.Errorf("Curve = %+v, want base 100 exponent 1.8", cfg.Curve)
	}
	if cfg.Queue.SpeechPreDelay != "1.5s" {
		t.Errorf("Queue.SpeechPreDelay = %q, want %q", cfg.Queue.SpeechPreDelay, "1.5s")
	}
	if len(cfg.Draw.Options) == 0 {
		t.Error("Draw.Options should ship a default prize table")
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default", cfg.API.Port)
	}
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glimmer.toml")
	body := `
[api]
port = 9100

[rewards.chat]
currency = 7
xp = 15
cooldown = "30s"

[queue]
speech_pre_delay = "2s"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.API.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default", cfg.API.Host)
	}

	rates := cfg.Rates()
	if rates.Chat.Currency != 7 || rates.Chat.XP != 15 || rates.Chat.Cooldown != 30*time.Second {
		t.Errorf("Chat rate = %+v", rates.Chat)
	}
	if pc := cfg.ProcessorConfig(); pc.SpeechPreDelay != 2*time.Second {
		t.Errorf("SpeechPreDelay = %v, want 2s", pc.SpeechPreDelay)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glimmer.toml")
	body := `
[queue]
watchdog_timeout = "soon"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want duration error")
	}
}

func TestDrawOptions_BuildEffects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Draw.Options = []DrawOptionConfig{
		{Name: "combo", Weight: 1, Currency: 10, XP: 20},
	}

	opts := cfg.DrawOptions()
	if len(opts) != 1 {
		t.Fatalf("got %d options", len(opts))
	}
	if len(opts[0].Effects) != 2 {
		t.Fatalf("effects = %+v, want grant_currency and grant_xp", opts[0].Effects)
	}
	if opts[0].Effects[0].Params["amount"] != "10" || opts[0].Effects[1].Params["amount"] != "20" {
		t.Errorf("effect params = %+v", opts[0].Effects)
	}
}
