package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("provide at least one ticker or --all")
	}

	rt, err := buildRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	tickers := make([]string, 0, len(args))
	for _, t := range args {
		tickers = append(tickers, strings.ToUpper(strings.TrimSpace(t)))
	}
	if all {
		tickers = rt.meta.Tickers()
	}

	prepErr := rt.manager.PrepareAll(cmd.Context(), tickers)

	for _, c := range rt.manager.Contexts() {
		line := fmt.Sprintf("%-6s %-9s points=%-3d reports=%d", c.Ticker, c.State(), len(c.Points()), c.ReportCount())
		if cerr := c.Err(); cerr != nil {
			line += "  " + cerr.Error()
		}
		fmt.Println(line)
	}
	return prepErr
}
