package config

import "time"

type Config struct {
	Transport TransportConfig
	LLM       LLMConfig
	Speech    SpeechConfig
	Video     VideoConfig
	Shell     ShellConfig
	Storage   StorageConfig
	Budget    BudgetConfig
	Session   SessionConfig

	HTTPAddr string
	TmpDir   string
	// Owners may run "/s " commands; empty allows everyone.
	Owners []string
}

type TransportConfig struct {
	Provider   string
	Token      string
	GatewayURL string
	GatewayKey string
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type SpeechConfig struct {
	Enabled    bool
	APIKey     string
	BaseURL    string
	STTModel   string
	TTSModel   string
	Voice      string
	FFmpegPath string
}

type VideoConfig struct {
	Enabled bool
	APIKey  string
}

type ShellConfig struct {
	Policy          string
	Allow           []string
	Timeout         time.Duration
	OutputCap       int
	ApprovalTimeout time.Duration
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type BudgetConfig struct {
	DailyLimit int
	WarnAt     float64
}

type SessionConfig struct {
	HistoryTurns   int
	ReconnectDelay time.Duration
	SettleDelay    time.Duration
	MinThink       time.Duration
	MaxThink       time.Duration
}
