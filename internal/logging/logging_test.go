package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		level, env string
		want       zapcore.Level
	}{
		{"", "production", zapcore.InfoLevel},
		{"debug", "development", zapcore.DebugLevel},
		{"warn", "", zapcore.WarnLevel},
	}
	for _, c := range cases {
		l, err := New(c.level, c.env)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", c.level, c.env, err)
		}
		if !l.Core().Enabled(c.want) || (c.want > zapcore.DebugLevel && l.Core().Enabled(c.want-1)) {
			t.Errorf("New(%q, %q): level mismatch", c.level, c.env)
		}
	}
	if _, err := New("loud", "production"); err == nil {
		t.Error("invalid level should fail")
	}
}
