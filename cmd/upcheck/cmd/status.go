package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-peer health status from a running worker",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Status endpoint of a running worker")
}

// peerStatus mirrors the JSON shape served by the worker's /status
// endpoint.
type peerStatus struct {
	Index      int       `json:"index"`
	Upstream   string    `json:"upstream"`
	Address    string    `json:"address"`
	Enabled    bool      `json:"enabled"`
	Owner      string    `json:"owner"`
	ActionTime time.Time `json:"actionTime"`
	Concurrent int       `json:"concurrent"`
	LastCode   string    `json:"lastCode"`
	Down       bool      `json:"down"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(statusAddr + "/status")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", statusAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var peers []peerStatus
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tUPSTREAM\tADDRESS\tOWNER\tSTREAK\tLAST\tVERDICT")
	for _, p := range peers {
		verdict := "up"
		switch {
		case !p.Enabled:
			verdict = "unchecked"
		case p.Down:
			verdict = "down"
		}
		owner := p.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.Index, p.Upstream, p.Address, owner, p.Concurrent, p.LastCode, verdict)
	}
	return w.Flush()
}
