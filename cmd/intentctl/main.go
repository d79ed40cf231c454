// Package main implements intentctl, a command-line tool for the intent rule
// table and the pattern memory database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"autofill-service/internal/intent"
	"autofill-service/internal/match"
)

var (
	// rulesPath overrides the embedded rule table
	rulesPath string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "intentctl",
	Short: "Inspect intent rules and manage pattern memory",
	Long: `intentctl runs the intent detector against ad-hoc questions and manages
the pattern memory database used by the autofill service.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule table YAML (default: embedded table)")
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(rulesCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect <question...>",
	Short: "Detect the intent of a form question",
	Long: `Detect the canonical intent of a form question and print the mapping result.

Examples:
  intentctl detect "What is your first name?"
  intentctl detect --rules ./rules.yaml Desired salary`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <text>",
	Short: "Print the normalized form of a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), match.NormalizeQuestion(strings.Join(args, " ")))
		return err
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the intent rule table",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

// detectOutput extends a mapping result with the derived flags.
type detectOutput struct {
	intent.MappingResult
	Normalized string `json:"normalized"`
	Protected  bool   `json:"protected"`
	Autofill   bool   `json:"autofill"`
}

type ruleOutput struct {
	Intent    string   `json:"intent"`
	Protected bool     `json:"protected"`
	Patterns  []string `json:"patterns"`
}

func loadDetector() (*intent.Detector, error) {
	if strings.TrimSpace(rulesPath) == "" {
		return intent.Default(), nil
	}
	table, err := intent.LoadTable(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return intent.NewDetector(table), nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	detector, err := loadDetector()
	if err != nil {
		return err
	}
	question := strings.Join(args, " ")
	result := detector.Detect(question)
	return printJSON(cmd.OutOrStdout(), detectOutput{
		MappingResult: result,
		Normalized:    match.NormalizeQuestion(question),
		Protected:     detector.IsProtected(result.CanonicalKey),
		Autofill:      detector.ShouldAutofill(result),
	})
}

func runRules(cmd *cobra.Command, _ []string) error {
	detector, err := loadDetector()
	if err != nil {
		return err
	}
	entries := detector.Entries()
	out := make([]ruleOutput, 0, len(entries))
	for _, entry := range entries {
		patterns := make([]string, 0, len(entry.Patterns))
		for _, p := range entry.Patterns {
			patterns = append(patterns, p.Source)
		}
		out = append(out, ruleOutput{Intent: entry.Intent, Protected: entry.IsProtected, Patterns: patterns})
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
