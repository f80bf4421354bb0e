package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/explain"
)

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if id, _ := cmd.Flags().GetString("id"); id != "" {
		r, err := rt.library.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(explain.Rule(r))
		return nil
	}

	catalog, err := rt.library.All(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range catalog {
		hash, err := r.Hash()
		if err != nil {
			return fmt.Errorf("hash rule %s: %w", r.ID, err)
		}
		fmt.Printf("%-28s %-20s %-10s %s  %s\n", r.ID, r.Purpose, r.Status, hash[:12], r.Name)
	}
	return nil
}
