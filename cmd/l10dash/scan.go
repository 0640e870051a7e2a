package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/l10dash/l10dash/pkg/ingest"
	"github.com/l10dash/l10dash/pkg/metrics"
	"github.com/l10dash/l10dash/pkg/scanner"
	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan pass and exit",
	Long: `Run one scan-parse-persist pass against the remote fileserver
without starting the API server or the scheduler. Useful for smoke
testing credentials and the remote path layout.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	zones, err := timeutil.LoadZones(cfg.Timezone.Source, cfg.Timezone.Display)
	if err != nil {
		return fmt.Errorf("resolving timezones: %w", err)
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Store stop error")
		}
	}()

	sc := scanner.NewSFTPScanner(log, &cfg.Remote, cfg.Scan.Concurrency)
	m := metrics.New(prometheus.NewRegistry())
	ingestor := ingest.NewIngestor(
		log, sc, st, zones, m, cfg.Scan.PassTimeoutDuration(),
	)

	report, err := ingestor.RunPass(ctx)
	if err != nil {
		return fmt.Errorf("scan pass: %w", err)
	}

	fmt.Printf("scanned:         %d\n", report.Scanned)
	fmt.Printf("new:             %d\n", report.New)
	fmt.Printf("duplicates:      %d\n", report.Duplicates)
	fmt.Printf("parse failures:  %d\n", report.ParseFails)

	for _, failure := range report.Failures {
		fmt.Printf("  %s: %s\n", failure.Name, failure.Reason)
	}

	return nil
}
