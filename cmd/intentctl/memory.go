package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"autofill-service/internal/memory"
	"autofill-service/internal/store"
)

var dbPath string

func init() {
	rootCmd.AddCommand(importGlobalCmd)
	rootCmd.AddCommand(statsCmd)

	for _, cmd := range []*cobra.Command{importGlobalCmd, statsCmd} {
		cmd.Flags().StringVar(&dbPath, "db", "data/autofill.db", "path to the SQLite database")
	}
}

var importGlobalCmd = &cobra.Command{
	Use:   "import-global <csv>",
	Short: "Import global patterns from a CSV file",
	Long: `Import curated global patterns from a CSV file with the columns
question,intent[,canonical_key]. Rows for protected intents are skipped.

Examples:
  intentctl import-global seeds/global.csv --db data/autofill.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImportGlobal,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pattern memory statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func openMemory() (*memory.Service, func(), error) {
	detector, err := loadDetector()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(dbPath, true)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeFn := func() {
		if cerr := db.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}
	return memory.NewService(db, memory.Options{IsProtected: detector.IsProtected}), closeFn, nil
}

func runImportGlobal(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openMemory()
	if err != nil {
		return err
	}
	defer closeFn()

	count, err := svc.ImportGlobalCSV(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"imported": count, "path": args[0]})
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openMemory()
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := svc.Stats()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}
