package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config          string
	Port            string   `toml:"server.port" env:"SERVER_PORT"`
	RefreshInterval int      `toml:"tokens.refresh_interval_minutes" env:"TOKEN_REFRESH_MINUTES"`
	Platforms       []string `toml:"resolver.platforms" env:"RESOLVER_PLATFORMS"`
	JSONLogs        bool     `toml:"logging.json" env:"LOG_JSON"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"

[tokens]
refresh_interval_minutes = 45

[resolver]
platforms = ["twitch.tv", "youtube.com"]

[logging]
json = true
`)

	opts := &testOptions{Config: path, Port: ":8080"}
	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want :9000", opts.Port)
	}
	if opts.RefreshInterval != 45 {
		t.Errorf("RefreshInterval = %d, want 45", opts.RefreshInterval)
	}
	if len(opts.Platforms) != 2 || opts.Platforms[0] != "twitch.tv" {
		t.Errorf("Platforms = %v", opts.Platforms)
	}
	if !opts.JSONLogs {
		t.Error("JSONLogs = false, want true")
	}
}

func TestEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, "[server]\nport = \":9000\"\n")

	t.Setenv("STREAMGATE_SERVER_PORT", ":7070")
	t.Setenv("STREAMGATE_RESOLVER_PLATFORMS", "twitch.tv, dailymotion.com")

	opts := &testOptions{Config: path}
	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if opts.Port != ":7070" {
		t.Errorf("Port = %q, want env value :7070", opts.Port)
	}
	if len(opts.Platforms) != 2 || opts.Platforms[1] != "dailymotion.com" {
		t.Errorf("Platforms = %v", opts.Platforms)
	}
}

func TestMissingConfigFileIsIgnored(t *testing.T) {
	opts := &testOptions{Config: "/nonexistent/config.toml", Port: ":8080"}
	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Port != ":8080" {
		t.Errorf("Port = %q, want default preserved", opts.Port)
	}
}

func TestMalformedConfigReturnsError(t *testing.T) {
	path := writeConfig(t, "not [valid toml")
	opts := &testOptions{Config: path}
	if err := Load(opts, nil); err == nil {
		t.Error("Load accepted malformed TOML")
	}
}

func TestFlagNameConversion(t *testing.T) {
	cases := map[string]string{
		"Port":            "port",
		"RefreshInterval": "refresh-interval",
		"JSONLogs":        "json-logs",
		"HLSRoot":         "hls-root",
		"LoggingAPI":      "logging-api",
		"LoggingHTTP":     "logging-http",
		"AuthUsername":    "auth-username",
	}
	for in, want := range cases {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCLIFlagWinsOverTOML(t *testing.T) {
	path := writeConfig(t, `
[streams]
hls_root = "/from/toml"

[server]
port = ":9000"
`)

	type acronymOptions struct {
		Config  string
		HLSRoot string `toml:"streams.hls_root" env:"STREAMS_HLS_ROOT"`
		Port    string `toml:"server.port" env:"SERVER_PORT"`
	}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("hls-root", "", "")
	cmd.Flags().String("port", "", "")
	if err := cmd.Flags().Set("hls-root", "/from/cli"); err != nil {
		t.Fatal(err)
	}

	opts := &acronymOptions{Config: path, HLSRoot: "/from/cli"}
	if err := Load(opts, cmd); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if opts.HLSRoot != "/from/cli" {
		t.Errorf("HLSRoot = %q, want CLI value /from/cli", opts.HLSRoot)
	}
	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want TOML value :9000", opts.Port)
	}
}
