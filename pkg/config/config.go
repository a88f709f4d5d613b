// Package config loads selfimprove settings from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

type Config struct {
	Model      ModelConfig   `yaml:"model"`
	Agent      AgentConfig   `yaml:"agent"`
	Tools      ToolsConfig   `yaml:"tools"`
	Sandbox    SandboxConfig `yaml:"sandbox"`
	Timeouts   Timeouts      `yaml:"timeouts"`
	OutputRoot string        `yaml:"output_root" validate:"required"`
}

type ModelConfig struct {
	Name           string  `yaml:"name" validate:"required"`
	DiagnosisModel string  `yaml:"diagnosis_model" validate:"required"`
	Temperature    float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	GeminiAPIKey   string  `yaml:"gemini_api_key"`
	OpenAIAPIKey   string  `yaml:"openai_api_key"`
	OpenAIBaseURL  string  `yaml:"openai_base_url" validate:"omitempty,url"`
}

type AgentConfig struct {
	MaxTurns       int           `yaml:"max_turns" validate:"gte=0"`
	MaxCorrections int           `yaml:"max_corrections" validate:"gte=1"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
}

type ToolsConfig struct {
	ShellTimeout time.Duration `yaml:"shell_timeout" validate:"gt=0"`
	// ShellNoNetwork cuts shell commands off from the network. The agent
	// process itself keeps network access to reach the model API.
	ShellNoNetwork bool `yaml:"shell_no_network"`
}

type SandboxConfig struct {
	Image          string   `yaml:"image" validate:"required"`
	WorkDir        string   `yaml:"workdir" validate:"required,startswith=/"`
	NamePrefix     string   `yaml:"name_prefix" validate:"required"`
	Publish        []string `yaml:"publish"`
	InstallCommand string   `yaml:"install_command"`
	AgentCommand   string   `yaml:"agent_command" validate:"required"`
}

type Timeouts struct {
	Setup     time.Duration `yaml:"setup" validate:"gte=0"`
	Diagnosis time.Duration `yaml:"diagnosis" validate:"gte=0"`
	Agent     time.Duration `yaml:"agent" validate:"gte=0"`
	CopyOut   time.Duration `yaml:"copy_out" validate:"gte=0"`
	Teardown  time.Duration `yaml:"teardown" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Model: ModelConfig{
			Name:           "gemini-2.5-pro",
			DiagnosisModel: "gemini-2.5-pro",
			Temperature:    0.7,
		},
		Agent: AgentConfig{
			MaxTurns:       50,
			MaxCorrections: 3,
		},
		Tools: ToolsConfig{
			ShellTimeout: 120 * time.Second,
		},
		Sandbox: SandboxConfig{
			Image:          "dgm",
			WorkDir:        "/dgm",
			NamePrefix:     "dgm-container-",
			InstallCommand: "python -m pip install -r requirements.txt",
			AgentCommand:   "selfimprove agent",
		},
		Timeouts: Timeouts{
			Setup:     10 * time.Minute,
			Diagnosis: 5 * time.Minute,
			Agent:     2 * time.Hour,
			CopyOut:   2 * time.Minute,
			Teardown:  time.Minute,
		},
		OutputRoot: "./output_selfimprove",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvGeminiAPIKey); v != "" {
		cfg.Model.GeminiAPIKey = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		cfg.Model.OpenAIAPIKey = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
