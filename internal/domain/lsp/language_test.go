package lsp

import "testing"

func TestLanguageIDForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"/abs/dir/app.py", "python"},
		{"web/index.tsx", "typescriptreact"},
		{"script.sh", "shellscript"},
		{"README.md", "markdown"},
		{"Makefile", FallbackLanguageID},
		{"data.bin", FallbackLanguageID},
		{"", FallbackLanguageID},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := LanguageIDForPath(tt.path); got != tt.want {
				t.Errorf("LanguageIDForPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestDefaultServersHaveLanguageIDs(t *testing.T) {
	for family, cfg := range DefaultServers {
		if len(cfg.Command) == 0 {
			t.Errorf("family %s has no command", family)
		}
		if cfg.LanguageID == "" {
			t.Errorf("family %s has no language id", family)
		}
		if len(cfg.Extensions) == 0 {
			t.Errorf("family %s has no extensions", family)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []ServerStatus{StatusFailed, StatusExited}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []ServerStatus{StatusUnstarted, StatusStarting, StatusInitializing, StatusReady}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
