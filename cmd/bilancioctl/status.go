package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

// syncStatus mirrors the server's status payload.
type syncStatus struct {
	Scope          string `json:"scope"`
	Online         bool   `json:"online"`
	Syncing        bool   `json:"syncing"`
	Loading        bool   `json:"loading"`
	PendingActions int    `json:"pendingActions"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and sync queue state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a reconciliation pass",
	Long: `Sync asks the server to replay its queued mutations against the
remote store. The command reports the queue state after the pass.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var onlineCmd = &cobra.Command{
	Use:   "online <true|false>",
	Short: "Override the server's connectivity state",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnline,
}

func runStatus(cmd *cobra.Command, args []string) error {
	body, err := apiRequest(http.MethodGet, "/api/status", nil)
	if err != nil {
		return err
	}
	return printStatus(body)
}

func runSync(cmd *cobra.Command, args []string) error {
	body, err := apiRequest(http.MethodPost, "/api/sync", nil)
	if err != nil {
		return err
	}
	return printStatus(body)
}

func runOnline(cmd *cobra.Command, args []string) error {
	online, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("invalid argument %q: want true or false", args[0])
	}
	payload, err := json.Marshal(map[string]bool{"online": online})
	if err != nil {
		return err
	}
	body, err := apiRequest(http.MethodPost, "/api/online", payload)
	if err != nil {
		return err
	}
	return printStatus(body)
}

func printStatus(body []byte) error {
	if jsonOutput {
		return printJSON(body)
	}
	var status syncStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Printf("Scope:    %s\n", status.Scope)
	fmt.Printf("Online:   %t\n", status.Online)
	fmt.Printf("Syncing:  %t\n", status.Syncing)
	fmt.Printf("Pending:  %d queued action(s)\n", status.PendingActions)
	return nil
}
