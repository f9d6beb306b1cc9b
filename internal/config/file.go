package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML file named by COURIER_CONFIG. It only
// carries non-secret tuning; credentials always come from the environment.
type fileConfig struct {
	Owners   []string `yaml:"owners"`
	HTTPAddr string   `yaml:"http_addr"`
	TmpDir   string   `yaml:"tmp_dir"`

	Transport struct {
		Provider   string `yaml:"provider"`
		GatewayURL string `yaml:"gateway_url"`
	} `yaml:"transport"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"llm"`

	Shell struct {
		Policy          string        `yaml:"policy"`
		Allow           []string      `yaml:"allow"`
		Timeout         time.Duration `yaml:"timeout"`
		OutputCap       int           `yaml:"output_cap"`
		ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	} `yaml:"shell"`

	Budget struct {
		DailyLimit int     `yaml:"daily_limit"`
		WarnAt     float64 `yaml:"warn_at"`
	} `yaml:"budget"`

	Session struct {
		HistoryTurns   int           `yaml:"history_turns"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		SettleDelay    time.Duration `yaml:"settle_delay"`
		MinThink       time.Duration `yaml:"min_think"`
		MaxThink       time.Duration `yaml:"max_think"`
	} `yaml:"session"`
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return fc, nil
}
