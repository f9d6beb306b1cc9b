package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bowerhall/courier/internal/shell"
)

// Load reads the optional YAML file named by COURIER_CONFIG and then the
// environment. Environment values win over the file.
func Load() (*Config, error) {
	fc, err := loadFile(os.Getenv("COURIER_CONFIG"))
	if err != nil {
		return nil, err
	}

	transportConfig, err := loadTransportConfig(fc)
	if err != nil {
		return nil, err
	}

	llmConfig, err := loadLLMConfig(fc)
	if err != nil {
		return nil, err
	}

	shellConfig, err := loadShellConfig(fc)
	if err != nil {
		return nil, err
	}

	httpAddr := getenv("COURIER_HTTP_ADDR", fc.HTTPAddr)
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	owners := fc.Owners
	if env := os.Getenv("COURIER_OWNERS"); env != "" {
		owners = splitList(env)
	}

	return &Config{
		Transport: transportConfig,
		LLM:       llmConfig,
		Speech:    loadSpeechConfig(),
		Video:     loadVideoConfig(),
		Shell:     shellConfig,
		Storage:   loadStorageConfig(),
		Budget:    loadBudgetConfig(fc),
		Session:   loadSessionConfig(fc),
		HTTPAddr:  httpAddr,
		TmpDir:    getenv("COURIER_TMPDIR", fc.TmpDir),
		Owners:    owners,
	}, nil
}

func loadTransportConfig(fc fileConfig) (TransportConfig, error) {
	provider := getenv("TRANSPORT_PROVIDER", fc.Transport.Provider)
	if provider == "" {
		provider = "gateway"
	}

	cfg := TransportConfig{Provider: provider}

	switch provider {
	case "gateway":
		cfg.GatewayURL = getenv("GATEWAY_URL", fc.Transport.GatewayURL)
		if cfg.GatewayURL == "" {
			return cfg, fmt.Errorf("GATEWAY_URL not set")
		}
		cfg.GatewayKey = os.Getenv("GATEWAY_KEY")
	case "telegram":
		cfg.Token = os.Getenv("TELEGRAM_TOKEN")
		if cfg.Token == "" {
			return cfg, fmt.Errorf("TELEGRAM_TOKEN not set")
		}
	case "discord":
		cfg.Token = os.Getenv("DISCORD_TOKEN")
		if cfg.Token == "" {
			return cfg, fmt.Errorf("DISCORD_TOKEN not set")
		}
	default:
		return cfg, fmt.Errorf("unknown TRANSPORT_PROVIDER: %s", provider)
	}

	return cfg, nil
}

func loadLLMConfig(fc fileConfig) (LLMConfig, error) {
	provider := getenv("LLM_PROVIDER", fc.LLM.Provider)
	if provider == "" {
		provider = DetectProvider()
	}
	if provider == "" {
		return LLMConfig{}, fmt.Errorf("LLM_PROVIDER not set and no provider API key found")
	}

	apiKey, err := getAPIKey(provider)
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    getenv("LLM_MODEL", fc.LLM.Model),
		BaseURL:  getenv("LLM_BASE_URL", fc.LLM.BaseURL),
	}, nil
}

// DetectProvider picks a provider from whichever API key is present.
func DetectProvider() string {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return "claude"
	case os.Getenv("GEMINI_API_KEY") != "":
		return "gemini"
	case os.Getenv("OPENAI_API_KEY") != "":
		return "openai"
	case os.Getenv("KIMI_API_KEY") != "":
		return "kimi"
	default:
		return ""
	}
}

func getAPIKey(provider string) (string, error) {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		return key, nil
	}

	var env string
	switch provider {
	case "claude":
		env = "ANTHROPIC_API_KEY"
	case "gemini":
		env = "GEMINI_API_KEY"
	case "openai":
		env = "OPENAI_API_KEY"
	case "kimi":
		env = "KIMI_API_KEY"
	case "ollama":
		// Ollama doesn't need an API key
		return "ollama", nil
	default:
		env = strings.ToUpper(provider) + "_API_KEY"
	}

	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s not set", env)
	}
	return key, nil
}

func loadSpeechConfig() SpeechConfig {
	// speech falls back to the OpenAI key since whisper and tts share it
	apiKey := os.Getenv("SPEECH_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return SpeechConfig{
		Enabled:    apiKey != "",
		APIKey:     apiKey,
		BaseURL:    os.Getenv("SPEECH_BASE_URL"),
		STTModel:   os.Getenv("SPEECH_STT_MODEL"),
		TTSModel:   os.Getenv("SPEECH_TTS_MODEL"),
		Voice:      os.Getenv("SPEECH_VOICE"),
		FFmpegPath: os.Getenv("FFMPEG_PATH"),
	}
}

func loadVideoConfig() VideoConfig {
	apiKey := os.Getenv("YOUTUBE_API_KEY")
	return VideoConfig{Enabled: apiKey != "", APIKey: apiKey}
}

func loadShellConfig(fc fileConfig) (ShellConfig, error) {
	mode, err := shell.ParseMode(getenv("SHELL_POLICY", fc.Shell.Policy))
	if err != nil {
		return ShellConfig{}, err
	}

	allow := fc.Shell.Allow
	if env := os.Getenv("SHELL_ALLOW"); env != "" {
		allow = splitList(env)
	}
	if mode == shell.ModeAllowlist && len(allow) == 0 {
		return ShellConfig{}, fmt.Errorf("SHELL_POLICY=allowlist requires SHELL_ALLOW")
	}

	return ShellConfig{
		Policy:          string(mode),
		Allow:           allow,
		Timeout:         getDuration("SHELL_TIMEOUT", fc.Shell.Timeout, shell.DefaultTimeout),
		OutputCap:       getInt("SHELL_OUTPUT_CAP", fc.Shell.OutputCap, shell.DefaultOutputCap),
		ApprovalTimeout: getDuration("SHELL_APPROVAL_TIMEOUT", fc.Shell.ApprovalTimeout, 2*time.Minute),
	}, nil
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   endpoint != "" && accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    os.Getenv("MINIO_BUCKET"),
	}
}

func loadBudgetConfig(fc fileConfig) BudgetConfig {
	// 0 means unlimited
	dailyLimit := getInt("AI_DAILY_LIMIT", fc.Budget.DailyLimit, 0)

	warnAt := 0.8 // default 80%
	if fc.Budget.WarnAt > 0 && fc.Budget.WarnAt < 1 {
		warnAt = fc.Budget.WarnAt
	}
	if warn, err := strconv.ParseFloat(os.Getenv("AI_WARN_AT"), 64); err == nil && warn > 0 && warn < 1 {
		warnAt = warn
	}

	return BudgetConfig{DailyLimit: dailyLimit, WarnAt: warnAt}
}

func loadSessionConfig(fc fileConfig) SessionConfig {
	return SessionConfig{
		HistoryTurns:   getInt("HISTORY_TURNS", fc.Session.HistoryTurns, 10),
		ReconnectDelay: getDuration("RECONNECT_DELAY", fc.Session.ReconnectDelay, 5*time.Second),
		SettleDelay:    getDuration("PLAY_SETTLE_DELAY", fc.Session.SettleDelay, 5*time.Second),
		MinThink:       getDuration("THINK_MIN", fc.Session.MinThink, time.Second),
		MaxThink:       getDuration("THINK_MAX", fc.Session.MaxThink, 3*time.Second),
	}
}

// getenv returns the environment value for key, or fallback when unset.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, file, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	if file > 0 {
		return file
	}
	return def
}

func getDuration(key string, file, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	if file > 0 {
		return file
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
