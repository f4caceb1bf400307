package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/birdscan-backend/internal/types"
)

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsListCmd, resultsLatestCmd)

	resultsListCmd.Flags().String("kind", "", "filter by table kind (primary|enhanced)")
	resultsLatestCmd.Flags().String("kind", "enhanced", "table kind to fetch (primary|enhanced)")
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect published result tables",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List result tables, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		tables, err := fetchTables(cmd, kind)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tKEY\tLAST MODIFIED")
		for _, t := range tables {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Kind, t.Key, t.LastModified.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var resultsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest table of a kind and its retrieval URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		tables, err := fetchTables(cmd, kind)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			fmt.Fprintln(os.Stdout, "no tables published yet")
			return nil
		}
		t := tables[0]
		fmt.Fprintf(os.Stdout, "%s\t%s\n", t.Key, t.URL)
		return nil
	},
}

func fetchTables(cmd *cobra.Command, kind string) ([]types.DiscoveredTable, error) {
	addr, _ := cmd.Flags().GetString("addr")
	url := addr + "/api/results"
	if kind != "" {
		url += "?kind=" + kind
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("query %s: status=%d body=%s", url, resp.StatusCode, body)
	}

	var out struct {
		Tables []types.DiscoveredTable `json:"tables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Tables, nil
}
