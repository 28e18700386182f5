package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// TestSecureHandler_SanitizesSensitiveKeys tests that sensitive keys are masked.
func TestSecureHandler_SanitizesSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		value    string
		wantMask bool
	}{
		{name: "cookie", key: "cookie", value: "session=abc123", wantMask: true},
		{name: "Cookie uppercase", key: "Cookie", value: "session=abc123", wantMask: true},
		{name: "authorization", key: "authorization", value: "Token abc", wantMask: true},
		{name: "password", key: "password", value: "hunter2", wantMask: true},
		{name: "login form nonce", key: "nonce", value: "a1b2c3", wantMask: true},
		{name: "keyword inside key", key: "user_password_field", value: "x", wantMask: true},
		{name: "session cookie name", key: "session_cookie", value: "x", wantMask: true},
		{name: "harmless key", key: "locator", value: "https://ctf.example.com/challenges#-3", wantMask: false},
		{name: "primary key is not a secret", key: "primary_key", value: "7", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewLogger(&buf, true, false)
			logger.Info("test", tt.key, tt.value)

			out := buf.String()
			if got := strings.Contains(out, MaskValue); got != tt.wantMask {
				t.Errorf("masked = %v, want %v; output: %s", got, tt.wantMask, out)
			}
			if tt.wantMask && strings.Contains(out, tt.value) {
				t.Errorf("value %q leaked: %s", tt.value, out)
			}
		})
	}
}

// TestSecureHandler_SanitizesSensitivePatterns tests value-based masking.
func TestSecureHandler_SanitizesSensitivePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			name:  "jwt",
			value: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig",
			want:  MaskValue,
		},
		{
			name:  "token authorization header",
			value: "Token ctfd_0123",
			want:  MaskValue,
		},
		{
			name:  "platform access token",
			value: "ctfd_0123456789abcdef0123456789abcdef",
			want:  MaskValue,
		},
		{
			name:  "download url keeps its path",
			value: "https://ctf.example.com/files/a.bin?token=eyJ1c2VyIjoxfQ.abc",
			want:  "https://ctf.example.com/files/a.bin?token=" + MaskValue,
		},
		{
			name:  "raw cookie header",
			value: "theme=dark; session=abc123",
			want:  "theme=dark; session=" + MaskValue,
		},
		{
			name:  "plain value",
			value: "[pwn] Warmup",
			want:  "[pwn] Warmup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewLogger(&buf, true, true)
			logger.Info("test", "value", tt.value)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid JSON output %q: %v", buf.String(), err)
			}
			if got := entry["value"]; got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecureHandler_MasksErrorsAndMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	err := errors.New(`Get "https://ctf.example.com/files/x?token=s3cr3t": EOF`)
	logger.Warn("download of ?token=leak failed", "error", err)

	out := buf.String()
	for _, secret := range []string{"s3cr3t", "leak"} {
		if strings.Contains(out, secret) {
			t.Errorf("secret %q leaked: %s", secret, out)
		}
	}
	if !strings.Contains(out, "ctf.example.com/files/x") {
		t.Errorf("non-secret part of the error was lost: %s", out)
	}
}

// TestSecureHandler_LogLevels tests the verbose switch.
func TestSecureHandler_LogLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
		wantWarn  bool
	}{
		{name: "quiet", verbose: false, wantDebug: false, wantWarn: true},
		{name: "verbose", verbose: true, wantDebug: true, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.verbose, false)
			logger.Debug("debug message")
			logger.Warn("warn message")

			out := buf.String()
			if got := strings.Contains(out, "debug message"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "warn message"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

// TestSecureHandler_WithAttrs tests that attributes bound to the logger are masked.
func TestSecureHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false).With("token", "abc123", "site", "ctf.example.com")
	logger.Info("test")

	out := buf.String()
	if strings.Contains(out, "abc123") {
		t.Errorf("token leaked: %s", out)
	}
	if !strings.Contains(out, "ctf.example.com") {
		t.Errorf("site missing: %s", out)
	}
}

// TestSecureHandler_WithGroup tests masking inside groups.
func TestSecureHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)
	logger.Info("login", slog.Group("form", slog.String("password", "hunter2"), slog.String("name", "alice")))

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked: %s", out)
	}
	if !strings.Contains(out, "alice") {
		t.Errorf("username missing: %s", out)
	}
}

// TestNewSecureHandler_NilHandler tests the nil fallback.
func TestNewSecureHandler_NilHandler(t *testing.T) {
	t.Parallel()

	if h := NewSecureHandler(nil); h.handler == nil {
		t.Error("expected a default handler")
	}
}
