package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "flowset.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := write(t, `
expected_labels: 0
dispatch: pool
max_chunks: 1
seed: 42
flow:
  win_size: 15
staging:
  root: /tmp/burst
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExpectedLabels != 0 || cfg.Dispatch != "pool" || cfg.MaxChunks != 1 || cfg.Seed != 42 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Flow.WinSize != 15 || cfg.Flow.Levels != 3 || cfg.Flow.PolyN != 5 {
		t.Fatalf("flow defaults not kept: %+v", cfg.Flow)
	}
	if cfg.Staging.Root != "/tmp/burst" || cfg.Staging.FPS != 8 || cfg.JPEGQuality != 95 {
		t.Fatalf("unexpected staging/quality %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	p := write(t, "dispatch: async\njpeg_quality: 0\nflow:\n  poly_n: 6\n")
	_, err := Load(p)
	if err == nil {
		t.Fatalf("expect validation error")
	}
	for _, want := range []string{"dispatch", "jpeg_quality", "poly_n"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expect read error")
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(write(t, "seed: [1,2")); err == nil {
		t.Fatalf("expect parse error")
	}
}
