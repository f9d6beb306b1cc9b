package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/courier/internal/config"
	"github.com/bowerhall/courier/internal/transport"
)

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := tr.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s link: %w", tr.Name(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s link credentials cleared\n", tr.Name())
	return nil
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	tr, err := transport.New(transport.Config{
		Provider:    cfg.Transport.Provider,
		Token:       cfg.Transport.Token,
		GatewayURL:  cfg.Transport.GatewayURL,
		GatewayKey:  cfg.Transport.GatewayKey,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	return tr, nil
}
