package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type retrieveRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// retrieveCmd implements the Retrieval hook CLI surface (spec §6): reads a
// prompt payload from stdin and prints a context block, or nothing.
func retrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve",
		Short: "Read a prompt payload from stdin and print relevant vault context",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()
			return runRetrieve(cmd.Context(), d, cmd.InOrStdin())
		},
	}
}

func runRetrieve(ctx context.Context, d *deps, stdin io.Reader) error {
	var req retrieveRequest
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return fmt.Errorf("decode stdin payload: %w", err)
	}
	if req.Prompt == "" {
		return nil
	}

	block, err := d.retrievalEngine().Retrieve(ctx, req.Prompt)
	if err != nil {
		d.log.Printf("RETRIEVE error: %v", err)
		return nil
	}
	if block == "" {
		return nil
	}
	fmt.Print(block)
	return nil
}
