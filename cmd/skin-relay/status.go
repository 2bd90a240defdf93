package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/server"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check if skin-relay server is running",
	Long: `Query the /health endpoint of a running skin-relay server and report
open upstream circuits and concurrency gate occupancy.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return checkStatus(cmd.Context(), cfg.Server.GetListen(), cmd.OutOrStdout())
}

// checkStatus queries the server listening on listen and prints a summary.
// A degraded server still counts as running.
func checkStatus(ctx context.Context, listen string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(listen), http.NoBody)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(out, "✗ %s is not running (%s)\n", appName, listen)
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Logger.Warn().Err(closeErr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "✗ %s returned unexpected status: %d\n", appName, resp.StatusCode)
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	var h server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	if h.Status == "degraded" {
		var open []string
		for _, c := range h.Circuits {
			if c.State == health.StateOpen.String() {
				open = append(open, c.Name)
			}
		}
		fmt.Fprintf(out, "⚠ %s is running but degraded (%s): open circuits: %s\n",
			appName, listen, strings.Join(open, ", "))
	} else {
		fmt.Fprintf(out, "✓ %s is running (%s)\n", appName, listen)
	}
	fmt.Fprintf(out, "  concurrency: %d active, %d pending, limit %d\n",
		h.Concurrency.Active, h.Concurrency.Pending, h.Concurrency.Limit)
	return nil
}

// healthURL builds the health endpoint for a listen address; wildcard hosts
// are reached over loopback.
func healthURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/health"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}
