package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format"`
	Window    WindowConfig    `json:"window" yaml:"window"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Drops     DropsConfig     `json:"drops" yaml:"drops"`
	Generator GeneratorConfig `json:"generator" yaml:"generator"`
}

type WindowConfig struct {
	Days      int    `json:"days" yaml:"days"`
	GraceDays int    `json:"grace_days" yaml:"grace_days"`
	Batch     string `json:"batch" yaml:"batch"`
}

// Retention is the full horizon kept per customer: the rolling window plus
// the late-arrival grace period.
func (w WindowConfig) Retention() time.Duration {
	return time.Duration(w.Days+w.GraceDays) * 24 * time.Hour
}

// BatchWindow parses the tumbling batch size. Validate has already rejected
// unparsable values, so this only guards the zero value.
func (w WindowConfig) BatchWindow() time.Duration {
	d, err := time.ParseDuration(w.Batch)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	Replay        ReplayConfig    `json:"replay" yaml:"replay"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type ReplayConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Follow  bool     `json:"follow" yaml:"follow"`
	Files   []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type DropsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type GeneratorConfig struct {
	Customers         int     `json:"customers" yaml:"customers"`
	EventsPerCustomer int     `json:"events_per_customer" yaml:"events_per_customer"`
	DuplicateRate     float64 `json:"duplicate_rate" yaml:"duplicate_rate"`
	OutOfOrderRate    float64 `json:"out_of_order_rate" yaml:"out_of_order_rate"`
	MaxAgeDays        int     `json:"max_age_days" yaml:"max_age_days"`
	MinAmount         float64 `json:"min_amount" yaml:"min_amount"`
	MaxAmount         float64 `json:"max_amount" yaml:"max_amount"`
	Seed              int64   `json:"seed" yaml:"seed"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Window: WindowConfig{
			Days:      30,
			GraceDays: 5,
			Batch:     "5m",
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			Replay:        ReplayConfig{Enabled: false, Follow: false},
			Kafka:         KafkaConfig{Enabled: false},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:featurestream.db?_pragma=busy_timeout(5000)"},
		Drops:   DropsConfig{StoreLimit: 1000},
		Generator: GeneratorConfig{
			Customers:         100,
			EventsPerCustomer: 20,
			DuplicateRate:     0.1,
			OutOfOrderRate:    0.3,
			MaxAgeDays:        40,
			MinAmount:         10,
			MaxAmount:         300,
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Window.Days <= 0 {
		cfg.Window.Days = 30
	}
	if cfg.Window.GraceDays < 0 {
		cfg.Window.GraceDays = 5
	}
	if cfg.Window.Batch == "" {
		cfg.Window.Batch = "5m"
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Drops.StoreLimit <= 0 {
		cfg.Drops.StoreLimit = 1000
	}
	if cfg.Generator.Customers <= 0 {
		cfg.Generator.Customers = 100
	}
	if cfg.Generator.EventsPerCustomer <= 0 {
		cfg.Generator.EventsPerCustomer = 20
	}
	if cfg.Generator.MaxAgeDays <= 0 {
		cfg.Generator.MaxAgeDays = 40
	}
	if cfg.Generator.MaxAmount <= cfg.Generator.MinAmount {
		cfg.Generator.MinAmount = 10
		cfg.Generator.MaxAmount = 300
	}
}

func Validate(cfg *Config) error {
	if cfg.Window.Days <= 0 {
		return errors.New("window.days must be > 0")
	}
	if cfg.Window.GraceDays < 0 {
		return errors.New("window.grace_days must be >= 0")
	}
	if d, err := time.ParseDuration(cfg.Window.Batch); err != nil || d <= 0 {
		return fmt.Errorf("window.batch must be a positive duration: %q", cfg.Window.Batch)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.Replay.Enabled && len(cfg.Ingest.Replay.Files) == 0 {
		return errors.New("ingest.replay.files required when ingest.replay.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver unsupported: %q", cfg.Storage.Driver)
		}
	}
	if cfg.Generator.DuplicateRate < 0 || cfg.Generator.DuplicateRate > 1 {
		return errors.New("generator.duplicate_rate must be in [0, 1]")
	}
	if cfg.Generator.OutOfOrderRate < 0 || cfg.Generator.OutOfOrderRate > 1 {
		return errors.New("generator.out_of_order_rate must be in [0, 1]")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

// Update validates cfg, persists it to the managed path, and makes it the
// current config.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
