package transport

import (
	"fmt"
	"time"
)

// maxMediaSize is the maximum size for media downloads (20MB).
const maxMediaSize = 20 * 1024 * 1024

func New(cfg Config) (Transport, error) {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	switch cfg.Provider {
	case "gateway":
		return NewGateway(cfg.GatewayURL, cfg.GatewayKey)
	case "telegram":
		return NewTelegram(cfg.Token, cfg.HTTPTimeout)
	case "discord":
		return NewDiscord(cfg.Token, cfg.HTTPTimeout)
	default:
		return nil, fmt.Errorf("unknown transport provider: %s", cfg.Provider)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max] + "..."
}
