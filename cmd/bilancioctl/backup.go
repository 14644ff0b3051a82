package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportOutput string
	importFile   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download a JSON backup of the dataset",
	Long: `Export downloads the full dataset as a JSON backup document.

Example:
  bilancioctl export -o backup.json
  bilancioctl export > backup.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import -f <file>",
	Short: "Replace the dataset from a JSON backup",
	Long: `Import uploads a backup document and replaces the whole dataset
with its contents. Queued offline mutations are discarded.

Example:
  bilancioctl import -f backup.json`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the backup to a file instead of stdout")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "backup file to upload (required)")
	_ = importCmd.MarkFlagRequired("file")
}

func runExport(cmd *cobra.Command, args []string) error {
	body, err := apiRequest(http.MethodGet, "/api/export", nil)
	if err != nil {
		return err
	}
	if exportOutput == "" {
		_, err = os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(exportOutput, body, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	fmt.Printf("Wrote backup to %s (%d bytes)\n", exportOutput, len(body))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	payload, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	body, err := apiRequest(http.MethodPost, "/api/import", payload)
	if err != nil {
		return err
	}
	fmt.Println("Dataset replaced")
	return printStatus(body)
}
