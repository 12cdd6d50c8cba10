package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsUnderProfileDir(t *testing.T) {
	dir := Dir("work")
	for name, p := range map[string]string{
		"lock":  LockPath("work"),
		"cache": CacheDBPath("work"),
		"logs":  LogPath("work"),
	} {
		if !strings.HasPrefix(p, dir) {
			t.Errorf("%s path %q not under profile dir %q", name, p, dir)
		}
	}
}

func TestConfigPathUnderBaseDir(t *testing.T) {
	if filepath.Dir(ConfigPath()) != BaseDir() {
		t.Errorf("ConfigPath() = %q, want file directly under %q", ConfigPath(), BaseDir())
	}
}
