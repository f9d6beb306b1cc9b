package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bowerhall/courier/internal/command"
)

func runInterpret(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if !command.IsCommand(text) {
		fmt.Fprintln(out, "route:    conversational")
		return nil
	}

	parsed, err := command.Interpret(text)
	fmt.Fprintln(out, "route:    system")
	fmt.Fprintf(out, "intent:   %s\n", parsed.Intent)
	if parsed.Argument != "" {
		fmt.Fprintf(out, "argument: %s\n", parsed.Argument)
	}
	if errors.Is(err, command.ErrMissingArgument) {
		fmt.Fprintln(out, "error:    missing argument")
	}
	return nil
}
