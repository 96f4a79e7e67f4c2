package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const validYAML = `
imap:
  host: imap.gmail.com
accounts:
  - address: me@gmail.com
    password: app-pass
telegram:
  bot_token: "123:abc"
  chat_id: 42
monitored_senders: "noreply@mysite.com, Notifications@Example.com"
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.IMAP.GetPort() != 993 {
		t.Errorf("default port = %d, want 993", cfg.IMAP.GetPort())
	}
	if !cfg.IMAP.GetUseTLS() {
		t.Errorf("default use_tls = false, want true")
	}
	if cfg.IMAP.GetFolder() != "INBOX" {
		t.Errorf("default folder = %q, want INBOX", cfg.IMAP.GetFolder())
	}
	if cfg.Interval() != 3*time.Minute {
		t.Errorf("default interval = %v, want 3m", cfg.Interval())
	}
	if cfg.Retention() != 7*24*time.Hour {
		t.Errorf("default retention = %v, want 168h", cfg.Retention())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.LogLevel)
	}

	want := []string{"noreply@mysite.com", "notifications@example.com"}
	if diff := cmp.Diff(want, cfg.Senders()); diff != "" {
		t.Errorf("senders mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		mangle  func(string) string
		wantErr string
	}{
		{
			name:    "missing host",
			mangle:  func(s string) string { return strings.Replace(s, "host: imap.gmail.com", "host: \"\"", 1) },
			wantErr: "imap.host",
		},
		{
			name:    "no accounts",
			mangle:  func(s string) string { return strings.Replace(s, "- address: me@gmail.com\n    password: app-pass", "[]", 1) },
			wantErr: "account",
		},
		{
			name:    "address without at sign",
			mangle:  func(s string) string { return strings.Replace(s, "me@gmail.com", "not-an-address", 1) },
			wantErr: "valid email address",
		},
		{
			name:    "missing password",
			mangle:  func(s string) string { return strings.Replace(s, "password: app-pass", "password: \"\"", 1) },
			wantErr: "password",
		},
		{
			name:    "missing bot token",
			mangle:  func(s string) string { return strings.Replace(s, `bot_token: "123:abc"`, `bot_token: ""`, 1) },
			wantErr: "bot_token",
		},
		{
			name:    "missing chat id",
			mangle:  func(s string) string { return strings.Replace(s, "chat_id: 42", "chat_id: 0", 1) },
			wantErr: "chat_id",
		},
		{
			name:    "empty sender list",
			mangle:  func(s string) string { return strings.Replace(s, `"noreply@mysite.com, Notifications@Example.com"`, `" , "`, 1) },
			wantErr: "monitored_senders",
		},
		{
			name:    "interval below minimum",
			mangle:  func(s string) string { return s + "check_interval_minutes: 0.1\n" },
			wantErr: "at least 0.25",
		},
		{
			name:    "zero retention",
			mangle:  func(s string) string { return s + "retention_days: 0\n" },
			wantErr: "retention_days",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.mangle(validYAML)))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", c.wantErr)
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestParseExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("EMAIL_PASSWORD", "s3cret")
	yaml := strings.Replace(validYAML, "password: app-pass", "password: ${EMAIL_PASSWORD}", 1)

	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Accounts[0].Password != "s3cret" {
		t.Fatalf("password = %q, want expanded secret", cfg.Accounts[0].Password)
	}
}

func TestFractionalInterval(t *testing.T) {
	yaml := validYAML + "check_interval_minutes: 0.25\n"
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Interval() != 15*time.Second {
		t.Fatalf("interval = %v, want 15s", cfg.Interval())
	}
}

func TestKeepAliveDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.KeepAlive.Enabled {
		t.Errorf("keep-alive enabled by default")
	}
	if got := cfg.KeepAlive.GetPort(); got != 10000 {
		t.Errorf("default keep-alive port = %d, want 10000", got)
	}
}

func TestKeepAlivePortFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.KeepAlive.GetPort(); got != 8080 {
		t.Fatalf("port = %d, want PORT override 8080", got)
	}
}
