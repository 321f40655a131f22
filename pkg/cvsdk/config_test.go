package cvsdk

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_ProjectConfig(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	projectConfig := `
baseUrl: http://scheduler.internal:4200
workPool: etl-pool
`
	os.WriteFile("conveyor.yaml", []byte(projectConfig), 0644)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != "http://scheduler.internal:4200" {
		t.Errorf("Expected baseUrl http://scheduler.internal:4200, got %s", cfg.BaseURL)
	}
	if cfg.WorkPool != "etl-pool" {
		t.Errorf("Expected workPool etl-pool, got %s", cfg.WorkPool)
	}
}

func TestLoadConfig_LocalOverride(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	projectConfig := `
baseUrl: http://scheduler.internal:4200
workPool: etl-pool
`
	os.WriteFile("conveyor.yaml", []byte(projectConfig), 0644)

	os.MkdirAll(ConfigRoot, 0755)
	localConfig := `
baseUrl: http://localhost:4200
pollInterval: 2s
`
	os.WriteFile(filepath.Join(ConfigRoot, "config.yaml"), []byte(localConfig), 0644)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Local override should win where it sets a value.
	if cfg.BaseURL != "http://localhost:4200" {
		t.Errorf("Expected baseUrl http://localhost:4200 (from local override), got %s", cfg.BaseURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("Expected pollInterval 2s, got %s", cfg.PollInterval)
	}
	// Project values without an override survive the merge.
	if cfg.WorkPool != "etl-pool" {
		t.Errorf("Expected workPool etl-pool, got %s", cfg.WorkPool)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != "http://localhost:4200" {
		t.Errorf("Expected default baseUrl http://localhost:4200, got %s", cfg.BaseURL)
	}
	if cfg.WorkPool != "default-pool" {
		t.Errorf("Expected default workPool default-pool, got %s", cfg.WorkPool)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("Expected default pollInterval 5s, got %s", cfg.PollInterval)
	}
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	customConfig := `
baseUrl: http://custom.internal:9000
workPool: gpu-pool
`
	customPath := filepath.Join(tempDir, "custom-config.yaml")
	os.WriteFile(customPath, []byte(customConfig), 0644)

	cfg, err := LoadConfig(customPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != "http://custom.internal:9000" {
		t.Errorf("Expected baseUrl http://custom.internal:9000, got %s", cfg.BaseURL)
	}
	if cfg.WorkPool != "gpu-pool" {
		t.Errorf("Expected workPool gpu-pool, got %s", cfg.WorkPool)
	}
	if cfg.ConfigFileUsed() != customPath {
		t.Errorf("Expected config file %s, got %s", customPath, cfg.ConfigFileUsed())
	}
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/conveyor.yaml"); err == nil {
		t.Fatal("Expected error for a missing explicit config file")
	}
}

func TestLoadConfig_TrailingSlashNormalized(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	os.WriteFile("conveyor.yaml", []byte("baseUrl: http://localhost:4200/\n"), 0644)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.BaseURL != "http://localhost:4200" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.BaseURL)
	}
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	t.Setenv("CONVEYOR_API_URL", "http://env-scheduler:4200")
	t.Setenv("CONVEYOR_WORK_POOL", "env-pool")
	t.Setenv("CONVEYOR_POLL_INTERVAL", "9s")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// With no config file at all, every CONVEYOR_* variable must land
	// instead of the built-in defaults.
	if cfg.BaseURL != "http://env-scheduler:4200" {
		t.Errorf("Expected baseUrl http://env-scheduler:4200, got %s", cfg.BaseURL)
	}
	if cfg.WorkPool != "env-pool" {
		t.Errorf("Expected workPool env-pool, got %s", cfg.WorkPool)
	}
	if cfg.PollInterval != 9*time.Second {
		t.Errorf("Expected pollInterval 9s, got %s", cfg.PollInterval)
	}
}

func TestLoadConfig_FileWinsOverEnvFallback(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	os.WriteFile("conveyor.yaml", []byte("baseUrl: http://file-scheduler:4200\n"), 0644)
	t.Setenv("CONVEYOR_API_URL", "http://env-scheduler:4200")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.BaseURL != "http://file-scheduler:4200" {
		t.Errorf("Expected the file value to win, got %s", cfg.BaseURL)
	}
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	t.Setenv("CONVEYOR_API_KEY", "secret-from-env")
	t.Setenv("CONVEYOR_STATE_ADDR", "localhost:6379")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.APIKey != "secret-from-env" {
		t.Errorf("Expected apiKey from environment, got %q", cfg.APIKey)
	}
	if cfg.StateAddr != "localhost:6379" {
		t.Errorf("Expected stateAddr from environment, got %q", cfg.StateAddr)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "<not set>"},
		{"short", "***"},
		{"pnu_1234567890abcdef", "pnu_...cdef"},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
