package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		log  func(l Logger)
		want []string
		skip []string
	}{
		{
			name: "text format info",
			cfg:  Config{},
			log:  func(l Logger) { l.Info("hello", "key", "value") },
			want: []string{"hello", "key=value"},
		},
		{
			name: "json format",
			cfg:  Config{JSON: true},
			log:  func(l Logger) { l.Info("hello") },
			want: []string{`"msg":"hello"`},
		},
		{
			name: "debug suppressed at default level",
			cfg:  Config{},
			log:  func(l Logger) { l.Debug("quiet") },
			skip: []string{"quiet"},
		},
		{
			name: "debug emitted when level lowered",
			cfg:  Config{Level: slog.LevelDebug},
			log:  func(l Logger) { l.Debug("loud") },
			want: []string{"loud"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewWithWriter(&buf, tt.cfg))
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output %q missing %q", out, s)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out, s) {
					t.Errorf("output %q unexpectedly contains %q", out, s)
				}
			}
		})
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	if l == nil {
		t.Fatal("NewNop returned nil")
	}
	// Must not panic.
	l.Info("discarded")
	l.Error("discarded")
}
