package monitoring

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLeveledOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(zerolog.WarnLevel)
	defer func() {
		SetOutput(os.Stderr)
		SetLevel(zerolog.InfoLevel)
	}()

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("request for map failed: %s", "unavailable")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn level were written: %q", out)
	}
	if !strings.Contains(out, "request for map failed: unavailable") {
		t.Errorf("warn message missing from output: %q", out)
	}
	if !strings.Contains(out, "WRN") {
		t.Errorf("expected WRN level marker, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseLevel(%q) = %v,%v want %v,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
