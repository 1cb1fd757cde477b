package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  Config{Watch: WatchConfig{Paths: []string{"/tmp/a"}}},
			wantErr: false,
		},
		{
			name:    "missing paths",
			config:  Config{},
			wantErr: true,
		},
		{
			name:    "blank path",
			config:  Config{Watch: WatchConfig{Paths: []string{" "}}},
			wantErr: true,
		},
		{
			name:    "unknown event class",
			config:  Config{Watch: WatchConfig{Paths: []string{"/tmp/a"}, Events: []string{"teleport"}}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			config:  Config{Watch: WatchConfig{Paths: []string{"/tmp/a"}, Backend: "poll"}},
			wantErr: true,
		},
		{
			name: "status on a public address",
			config: Config{
				Watch:  WatchConfig{Paths: []string{"/tmp/a"}},
				Status: StatusConfig{Listen: "0.0.0.0:9000"},
			},
			wantErr: true,
		},
		{
			name: "status on loopback",
			config: Config{
				Watch:  WatchConfig{Paths: []string{"/tmp/a"}},
				Status: StatusConfig{Listen: "127.0.0.1:9000"},
			},
			wantErr: false,
		},
		{
			name: "bad log level",
			config: Config{
				Watch:   WatchConfig{Paths: []string{"/tmp/a"}},
				Logging: LoggingConfig{Level: "loud"},
			},
			wantErr: true,
		},
		{
			name: "negative queue bound",
			config: Config{
				Watch: WatchConfig{Paths: []string{"/tmp/a"}},
				Queue: QueueConfig{MaxPending: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Config{Watch: WatchConfig{Paths: []string{"/tmp/a"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Socket.Path != DefaultSocketPath {
		t.Errorf("Socket.Path = %v, want %v", cfg.Socket.Path, DefaultSocketPath)
	}
	if cfg.Watch.Backend != DefaultBackend() {
		t.Errorf("Watch.Backend = %v, want %v", cfg.Watch.Backend, DefaultBackend())
	}
	if cfg.Delivery.WriteTimeout != 5*time.Second {
		t.Errorf("Delivery.WriteTimeout = %v, want 5s", cfg.Delivery.WriteTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}

	targets, err := cfg.Targets()
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	if len(targets) != 1 || targets[0].Classes != watcher.DefaultClasses {
		t.Errorf("Targets() = %+v, want default classes", targets)
	}
}

func TestEffectiveWriteTimeout(t *testing.T) {
	if got := (DeliveryConfig{WriteTimeout: -time.Second}).EffectiveWriteTimeout(); got != 0 {
		t.Errorf("EffectiveWriteTimeout() = %v, want 0", got)
	}
	if got := (DeliveryConfig{WriteTimeout: time.Second}).EffectiveWriteTimeout(); got != time.Second {
		t.Errorf("EffectiveWriteTimeout() = %v, want 1s", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
watch:
  backend: fsnotify
  events: [create, modify]
  paths:
    - /tmp/a
    - /tmp/b

socket:
  path: /tmp/test.sock
  accept_rate: 2.5

delivery:
  write_timeout: 250ms
  max_concurrent: 4

queue:
  max_pending: 1000

logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if len(cfg.Watch.Paths) != 2 || cfg.Watch.Paths[1] != "/tmp/b" {
		t.Errorf("Paths = %v, want [/tmp/a /tmp/b]", cfg.Watch.Paths)
	}
	if cfg.Socket.Path != "/tmp/test.sock" {
		t.Errorf("Socket.Path = %v, want %v", cfg.Socket.Path, "/tmp/test.sock")
	}
	if cfg.Socket.AcceptRate != 2.5 {
		t.Errorf("AcceptRate = %v, want 2.5", cfg.Socket.AcceptRate)
	}
	if cfg.Delivery.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v, want 250ms", cfg.Delivery.WriteTimeout)
	}
	if cfg.Queue.MaxPending != 1000 {
		t.Errorf("MaxPending = %v, want 1000", cfg.Queue.MaxPending)
	}

	targets, _ := cfg.Targets()
	if targets[0].Classes != watcher.Create|watcher.Modify {
		t.Errorf("Classes = %v, want CREATE|MODIFY", targets[0].Classes)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("watch: [unterminated"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("Load() should return error for malformed YAML")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional("")
	if err != nil || cfg == nil {
		t.Fatalf("LoadOptional(\"\") = %v, %v", cfg, err)
	}
}
