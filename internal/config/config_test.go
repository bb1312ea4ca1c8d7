package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" {
		t.Fatalf("port/mode = %d/%s", cfg.Port, cfg.Mode)
	}
	if cfg.Room.MaxClients != 30 {
		t.Fatalf("max_clients = %d, want 30", cfg.Room.MaxClients)
	}
	if cfg.Room.PatchRate != 100*time.Millisecond {
		t.Fatalf("patch_rate = %s, want 100ms", cfg.Room.PatchRate)
	}
	if len(cfg.Room.Names) != 1 || cfg.Room.Names[0] != "gallery" {
		t.Fatalf("room names = %v", cfg.Room.Names)
	}
	if cfg.PongWait() != 60*time.Second {
		t.Fatalf("pong wait = %s", cfg.PongWait())
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gallery.yaml")
	yaml := `
mode: debug
room:
  names: [gallery, lobby]
  patch_rate: 50ms
  session_ids: sequential
ice_servers:
  - urls: ["stun:stun.l.google.com:19302"]
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GALLERY_ROOM_MAX_CLIENTS", "12")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", file, "--port", "9090"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want flag value 9090", cfg.Port)
	}
	if cfg.Mode != "debug" {
		t.Fatalf("mode = %s, want file value debug", cfg.Mode)
	}
	if cfg.Room.MaxClients != 12 {
		t.Fatalf("max_clients = %d, want env value 12", cfg.Room.MaxClients)
	}
	if cfg.Room.PatchRate != 50*time.Millisecond || cfg.Room.SessionIDs != "sequential" {
		t.Fatalf("room = %+v", cfg.Room)
	}
	if len(cfg.Room.Names) != 2 {
		t.Fatalf("names = %v", cfg.Room.Names)
	}
	ice := cfg.WebRTC()
	if len(ice) != 1 || ice[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ice servers = %+v", ice)
	}
}

func TestLoadRejectsBadSessionIDs(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	t.Setenv("GALLERY_ROOM_SESSION_IDS", "random")
	if _, err := Load(nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsUnparsableFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(file, []byte("room: [unterminated\n  max_clients: : 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", file}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(fs); err == nil {
		t.Fatal("expected an error for a config file that does not parse")
	}
}

func TestLoadMissingExplicitFileUsesDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Room.MaxClients != 30 {
		t.Fatalf("max_clients = %d, want default 30", cfg.Room.MaxClients)
	}
}
