/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andref2015/train-agent/internal/browser"
	"github.com/andref2015/train-agent/internal/cities"
	"github.com/andref2015/train-agent/internal/fetcher"
	"github.com/andref2015/train-agent/internal/models"
	"github.com/andref2015/train-agent/internal/server"
	"github.com/andref2015/train-agent/internal/trains"
)

var (
	queryFrom    string
	queryTo      string
	queryDate    string
	queryAfter   string
	queryLimit   int
	queryVerbose bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Look up trains once and print them",
	Long: `Look up departures for one route and date, then print them.

Examples:
  # Tomorrow afternoon from Tallinn to Tartu
  trainagent query --from Tallinn --to Tartu

  # A specific date, evening trains only
  trainagent query --from tartu --to parnu --date 2025-06-21 --after 18:00 --limit 5
`,
	RunE: runQuery,
}

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List supported cities and their aliases",
	RunE:  runCities,
}

func init() {
	queryCmd.Flags().StringVar(&queryFrom, "from", "Tallinn", "Departure city")
	queryCmd.Flags().StringVar(&queryTo, "to", "Tartu", "Destination city")
	queryCmd.Flags().StringVar(&queryDate, "date", "tomorrow", "Travel date (YYYY-MM-DD, today or tomorrow)")
	queryCmd.Flags().StringVar(&queryAfter, "after", "", "Only trains departing after HH:MM (default from config)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum number of trains (default from config)")
	queryCmd.Flags().BoolVarP(&queryVerbose, "verbose", "v", false, "Log fetch attempts")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(citiesCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !queryVerbose {
		logger = logger.Level(zerolog.WarnLevel)
	}
	if cmd.Flags().Changed("limit") && (queryLimit < models.MinLimit || queryLimit > models.MaxLimit) {
		return fmt.Errorf("%s", trains.LimitDetail)
	}

	resolver, err := loadCities()
	if err != nil {
		return err
	}

	rodCfg := browser.DefaultRodConfig()
	rodCfg.Bin = cfg.BrowserBin
	rodCfg.Headless = cfg.BrowserHeadless
	rodCfg.Settle = cfg.FetchSettle
	pool := browser.NewPool(browser.NewRodLauncher(rodCfg, logger), 1, logger)

	f := fetcher.New(pool, fetcher.Config{
		BaseURL:        cfg.SourceBaseURL,
		Retries:        cfg.FetchRetries,
		AttemptTimeout: cfg.FetchAttemptTimeout,
		Backoff:        cfg.FetchBackoff,
	}, nil, logger)

	loc, err := time.LoadLocation(server.ScheduleLocation)
	if err != nil {
		loc = time.Local
	}
	svc := trains.NewService(resolver, f, nil, trains.Config{
		Defaults: cfg.QueryDefaults(),
		Timeout:  cfg.QueryTimeout,
		Location: loc,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := svc.Run(ctx, models.Query{
		Origin:      queryFrom,
		Destination: queryTo,
		Date:        queryDate,
		AfterTime:   queryAfter,
		Limit:       queryLimit,
	})
	if err != nil {
		return fmt.Errorf("%s", models.Detail(err))
	}

	printResult(cmd.OutOrStdout(), result)
	return nil
}

// printResult writes the terminal rendering of a result:
//
//	🚂 Tallinn → Tartu Trains (Jun 21)
//
//	2 trains after 15:00:
//	1. 15:32 → 17:40
//	2. 16:52 → 19:01
//
//	⚡ 4.21s
func printResult(w io.Writer, r *models.Result) {
	q := r.Query
	fmt.Fprintf(w, "🚂 %s → %s Trains (%s)\n", q.Origin, q.Destination, q.Date.Short())
	if len(r.Entries) == 0 {
		fmt.Fprintf(w, "\nNo trains found after %s\n", q.After)
	} else {
		fmt.Fprintf(w, "\n%d trains after %s:\n", len(r.Entries), q.After)
		for i, e := range r.Entries {
			line := fmt.Sprintf("%d. %s", i+1, e.Display())
			if e.Overnight {
				line += " (+1 day)"
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "\n⚡ %.2fs\n", r.ElapsedSeconds())
}

func runCities(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	resolver, err := loadCities()
	if err != nil {
		return err
	}
	printCities(cmd.OutOrStdout(), resolver.Cities())
	return nil
}

func printCities(w io.Writer, list []models.City) {
	for _, c := range list {
		if len(c.Aliases) == 0 {
			fmt.Fprintln(w, c.Name)
			continue
		}
		fmt.Fprintf(w, "%-10s %s\n", c.Name, strings.Join(c.Aliases, ", "))
	}
}

func loadCities() (*cities.Resolver, error) {
	if cfg.CitiesFile == "" {
		return cities.Default(), nil
	}
	resolver, err := cities.LoadFile(cfg.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("load cities: %w", err)
	}
	return resolver, nil
}
