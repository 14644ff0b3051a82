// Package main provides bilancioctl, the admin CLI for a running
// bilancio server. It speaks to the JSON API over HTTP.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is set by the --server flag.
	serverURL string

	// jsonOutput switches human-readable output to raw JSON.
	jsonOutput bool

	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bilancioctl",
	Short: "Administer a running bilancio server",
	Long: `bilancioctl talks to the bilancio HTTP API: inspect sync status,
trigger reconciliation, toggle connectivity and move backups in and out.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("BILANCIO_SERVER", "http://localhost:8081"), "base URL of the bilancio server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bilancioctl v0.1.0")
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiRequest performs a request against the server and returns the body.
// Non-2xx responses are surfaced as errors carrying the server's message.
func apiRequest(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server: %s (%s)", apiErr.Error, resp.Status)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return respBody, nil
}

// printJSON re-indents a JSON body for the terminal.
func printJSON(body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
