package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// clearEnv unsets keys for the test and restores them afterwards.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t, "ARC_HTTP_ADDR", "ARC_STORE_DRIVER", "ARC_RESTORE_ON_START", "ARC_REDIS_DB", "ARC_DB_SCHEMA")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:7420" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "memory" || cfg.PostgresSchema != "arcclient" {
		t.Fatalf("store defaults: %+v", cfg)
	}
	if !cfg.RestoreOnStart {
		t.Fatalf("RestoreOnStart should default to true")
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ARC_REDIS_DB", "-3")
	t.Setenv("ARC_RESTORE_ON_START", "maybe")
	t.Setenv("ARC_HTTP_READ_TIMEOUT", "soon")

	cfg := LoadConfig()
	if cfg.RedisDB != 0 {
		t.Fatalf("RedisDB=%d", cfg.RedisDB)
	}
	if !cfg.RestoreOnStart {
		t.Fatalf("invalid bool must fall back to default")
	}
	if cfg.ReadTimeout.String() != "15s" {
		t.Fatalf("ReadTimeout=%v", cfg.ReadTimeout)
	}
}

func TestLoadConfigFromArgs_EnvFileAndFlags(t *testing.T) {
	clearEnv(t, "ARC_HTTP_ADDR", "ARC_LOG_LEVEL", "ARC_STORE_DRIVER", "ARC_REDIS_ADDR")
	t.Setenv("ARC_LOG_LEVEL", "warn")

	dir := t.TempDir()
	envFile := filepath.Join(dir, "agent.env")
	content := "ARC_HTTP_ADDR=127.0.0.1:9999\nARC_LOG_LEVEL=debug\nARC_STORE_DRIVER=redis\nARC_REDIS_ADDR=127.0.0.1:6379\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadConfigFromArgs([]string{"--env-file", envFile, "--store", "postgres", "--restore-on-start=false"})
	if err != nil {
		t.Fatalf("LoadConfigFromArgs: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr from env file=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("process env must win over env file, LogLevel=%q", cfg.LogLevel)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("flag must win over env, StoreDriver=%q", cfg.StoreDriver)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("RedisAddr=%q", cfg.RedisAddr)
	}
	if cfg.RestoreOnStart {
		t.Fatalf("RestoreOnStart flag not applied")
	}
}

func TestLoadConfigFromArgs_EnvFile(t *testing.T) {
	t.Run("default missing file is ignored", func(t *testing.T) {
		t.Chdir(t.TempDir())
		if _, err := LoadConfigFromArgs(nil); err != nil {
			t.Fatalf("LoadConfigFromArgs: %v", err)
		}
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		_, err := LoadConfigFromArgs([]string{"--env-file", filepath.Join(t.TempDir(), "nope.env")})
		if err == nil {
			t.Fatalf("expected error for missing explicit env file")
		}
	})
}

func TestLoadConfigFromArgs_HelpAndExtraArgs(t *testing.T) {
	if _, err := LoadConfigFromArgs([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected pflag.ErrHelp, got %v", err)
	}
	if _, err := LoadConfigFromArgs([]string{"--env-file", "", "serve"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}
