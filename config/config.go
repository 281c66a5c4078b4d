package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/chaos-io/rmbg/matte"
)

type Config struct {
	Model    ModelConfig    `json:"model"`
	Pipeline PipelineConfig `json:"pipeline"`
	Output   OutputConfig   `json:"output"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// ModelConfig 推理后端，onnx 为本地模型，remote 为 KServe v2 协议的推理服务
type ModelConfig struct {
	Backend     string `json:"backend"`
	Path        string `json:"path"`
	LibraryPath string `json:"library_path"`
	InputName   string `json:"input_name"`
	OutputName  string `json:"output_name"`
	OutputSize  int    `json:"output_size"`
	UseCUDA     bool   `json:"use_cuda"`
	NumThreads  int    `json:"num_threads"`

	RemoteURL   string   `json:"remote_url"`
	RemoteModel string   `json:"remote_model"`
	Timeout     Duration `json:"timeout"`
}

type PipelineConfig struct {
	InputSize        int    `json:"input_size"`
	DegeneratePolicy string `json:"degenerate_policy"`
	AutoCrop         bool   `json:"auto_crop"`
}

type OutputConfig struct {
	Format  string `json:"format"`
	MaxSize int    `json:"max_size"`
	Dir     string `json:"dir"`
}

type ServerConfig struct {
	Addr        string   `json:"addr"`
	StoreDir    string   `json:"store_dir"`
	DBPath      string   `json:"db_path"`
	Retention   Duration `json:"retention"`
	Cleanup     string   `json:"cleanup"`
	MaxUploadMB int      `json:"max_upload_mb"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Duration 以 "120s"、"24h" 这种字符串形式读写
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:     BackendONNX,
			Path:        "./models/rmbg-1.4.onnx",
			InputName:   "input",
			OutputName:  "output",
			OutputSize:  1024,
			RemoteURL:   "http://localhost:8000",
			RemoteModel: "rmbg",
			Timeout:     Duration(120 * time.Second),
		},
		Pipeline: PipelineConfig{
			InputSize:        1024,
			DegeneratePolicy: matte.DegenerateOpaque.String(),
		},
		Output: OutputConfig{
			Format: "png",
			Dir:    "./output",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			StoreDir:    "./output/store",
			DBPath:      "./output/store/index.db",
			Retention:   Duration(24 * time.Hour),
			Cleanup:     "@hourly",
			MaxUploadMB: 32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile 在默认值之上覆盖文件里出现的字段
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required for the onnx backend")
		}
	case BackendRemote:
		if c.Model.RemoteURL == "" || c.Model.RemoteModel == "" {
			return fmt.Errorf("model.remote_url and model.remote_model are required for the remote backend")
		}
	default:
		return fmt.Errorf("model.backend must be %q or %q, got %q", BackendONNX, BackendRemote, c.Model.Backend)
	}
	if c.Model.OutputSize < 1 {
		return fmt.Errorf("model.output_size must be positive")
	}
	if c.Model.NumThreads < 0 {
		return fmt.Errorf("model.num_threads must not be negative")
	}

	if c.Pipeline.InputSize < 1 {
		return fmt.Errorf("pipeline.input_size must be positive")
	}
	if _, err := matte.ParseDegeneratePolicy(c.Pipeline.DegeneratePolicy); err != nil {
		return fmt.Errorf("pipeline.degenerate_policy: %w", err)
	}

	if !slices.Contains([]string{"png", "webp"}, c.Output.Format) {
		return fmt.Errorf("output.format must be png or webp, got %q", c.Output.Format)
	}
	if c.Output.MaxSize < 0 {
		return fmt.Errorf("output.max_size must not be negative")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Server.Retention < 0 {
		return fmt.Errorf("server.retention must not be negative")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// GetConfigPath 默认配置文件位置
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "rmbg", "config.json")
}
