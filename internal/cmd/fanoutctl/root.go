// Package fanoutctl provides the `fanoutctl` command-line client: a thin
// HTTP wrapper over the admin surface exposed by internal/adminhttp (health,
// sessions, peers, tail).
//
// Grounded on the teacher's internal/cmd/client package shape (a NewRoot
// constructor taking a BaseURLFunc, one subcommand group per concern); this
// module has no gRPC transport, so every subcommand here talks plain HTTP
// instead of the teacher's gRPC client stack.
package fanoutctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the admin HTTP base URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs the root Cobra command for the admin client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "fanoutctl",
		Short: "Inspect a running fanout daemon",
	}
	root.AddCommand(
		newHealthCommand(baseURL),
		newSessionsCommand(baseURL),
		newPeersCommand(baseURL),
		newTailCommand(baseURL),
	)
	return root
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http error: %s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newHealthCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]interface{}
			if err := getJSON(baseURL()+"/healthz", &body); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	return cmd
}

func newSessionsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions known to a namespace adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			nsp, _ := cmd.Flags().GetString("nsp")
			var body []map[string]interface{}
			if err := getJSON(baseURL()+"/sessions?nsp="+nsp, &body); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	cmd.Flags().StringP("nsp", "n", "/", "Namespace")
	return cmd
}

func newPeersCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List peer instances currently considered alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			nsp, _ := cmd.Flags().GetString("nsp")
			var body map[string]interface{}
			if err := getJSON(baseURL()+"/peers?nsp="+nsp, &body); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	cmd.Flags().StringP("nsp", "n", "/", "Namespace")
	return cmd
}

func newTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream the shared event collection as newline-delimited JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			nsp, _ := cmd.Flags().GetString("nsp")
			resp, err := http.Get(baseURL() + "/tail?nsp=" + nsp)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("http error: %s: %s", resp.Status, string(body))
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	cmd.Flags().StringP("nsp", "n", "/", "Namespace")
	return cmd
}
