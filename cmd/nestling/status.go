// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nestling/nestling/internal/httpapi"
)

const statusProbeTimeout = 2 * time.Second

// ProbeStatus holds the result of probing one endpoint of a running server.
type ProbeStatus struct {
	Check     string `json:"check"`
	URL       string `json:"url"`
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe a running Nestling server",
		Long: `Probe the API listener and the liveness and readiness endpoints of
the server described by the current configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	return cmd
}

// runStatus executes the status command. It fails when any probe fails.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: statusProbeTimeout}
	statuses := probeAll(cmd.Context(), client, appCfg.Server.Addr, appCfg.Metrics.Addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	var failed []string
	for _, s := range statuses {
		if !s.OK {
			failed = append(failed, s.Check)
		}
	}
	if len(failed) > 0 {
		return oops.Code("STATUS_UNHEALTHY").
			With("failed", failed).
			Errorf("unhealthy: %s", strings.Join(failed, ", "))
	}
	return nil
}

// probeAll checks the API and, when metricsAddr is set, both health probes.
func probeAll(ctx context.Context, client *http.Client, apiAddr, metricsAddr string) []ProbeStatus {
	// An unauthenticated me request answers 401 from a healthy API.
	statuses := []ProbeStatus{
		probe(ctx, client, "api", "http://"+apiAddr+httpapi.RouteMe, http.StatusUnauthorized),
	}
	if metricsAddr != "" {
		statuses = append(statuses,
			probe(ctx, client, "liveness", "http://"+metricsAddr+"/healthz/liveness", http.StatusOK),
			probe(ctx, client, "readiness", "http://"+metricsAddr+"/healthz/readiness", http.StatusOK),
		)
	}
	return statuses
}

func probe(ctx context.Context, client *http.Client, check, url string, want int) ProbeStatus {
	status := ProbeStatus{Check: check, URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	status.LatencyMS = time.Since(start).Milliseconds()
	status.Status = resp.StatusCode
	status.OK = resp.StatusCode == want
	if !status.OK {
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CHECK\tSTATE\tHTTP\tLATENCY\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t-------\t------")

	for _, s := range statuses {
		state := "ok"
		if !s.OK {
			state = "failing"
		}
		code := "-"
		if s.Status != 0 {
			code = fmt.Sprintf("%d", s.Status)
		}
		detail := s.URL
		if s.Error != "" {
			detail = s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n", s.Check, state, code, s.LatencyMS, detail)
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
