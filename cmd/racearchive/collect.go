package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/race-archive/internal/domain"
)

var (
	flagPeriods []string
	flagResults bool
	flagVenue   string
	flagCountry string
)

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect records for one or more months and print them as JSON",
		Example: `  racearchive collect --period 2024-05
  racearchive collect --period 2024-05,2024-06 --results --country GB`,
		RunE: runCollect,
	}
	cmd.Flags().StringSliceVar(&flagPeriods, "period", nil, "Month to collect as YYYY-MM (repeatable or comma separated)")
	cmd.Flags().BoolVar(&flagResults, "results", false, "Also fill in result reports")
	cmd.Flags().StringVar(&flagVenue, "venue", "", "Keep only records whose venue contains this text")
	cmd.Flags().StringVar(&flagCountry, "country", "", "Keep only records with this country code")
	cmd.MarkFlagRequired("period")
	return cmd
}

func runCollect(cmd *cobra.Command, args []string) error {
	periods, err := domain.ParsePeriods(strings.Join(flagPeriods, ","))
	if err != nil {
		return fmt.Errorf("invalid --period: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := domain.CollectRequest{Periods: periods, WithResults: flagResults}
	if flagVenue != "" || flagCountry != "" {
		req.Filter = &domain.Filter{Venue: flagVenue, Country: flagCountry}
	}

	res, err := a.crawler.Collect(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
