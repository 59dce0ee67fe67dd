package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/spf13/cobra"
)

var (
	callServer string
	callArgs   string
	callToken  string
)

var callCmd = &cobra.Command{
	Use:   "call <operation>",
	Short: "Invoke one operation on a running bridge server",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callServer, "server", "http://127.0.0.1:8422", "bridge server base URL")
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "operation arguments as a JSON object")
	callCmd.Flags().StringVar(&callToken, "token", "", "bearer token when the server requires one")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	req := dispatch.Request{Operation: args[0]}
	if err := json.Unmarshal([]byte(callArgs), &req.Arguments); err != nil {
		return fmt.Errorf("parse --args: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	url := strings.TrimRight(callServer, "/") + "/call"
	httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if callToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+callToken)
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", req.Operation, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	var resp dispatch.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("call %s: unexpected reply (%d): %s", req.Operation, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.Error != nil {
		return resp.Error
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
