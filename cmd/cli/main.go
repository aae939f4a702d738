package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/infrastructure"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

var (
	serverURL   string
	noAutoStart bool
	configPath  string
	rootCmd     = &cobra.Command{
		Use:   "vgrab",
		Short: "vgrab - download every video listed on a playlist page",
		Long: `vgrab opens a playlist page in a headless browser, resolves each listed
player to its stream URL and saves the videos one after another.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./configs, $HOME/.vgrab, /etc/vgrab)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)

	historyCmd.AddCommand(historyShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Run a batch on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		data, _ := json.Marshal(map[string]string{"url": args[0]})
		resp, err := http.Post(serverURL+"/api/v1/batches", "application/json", bytes.NewBuffer(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("server answered %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}

		var run domain.BatchRun
		if err := json.Unmarshal(body, &run); err != nil {
			return err
		}
		fmt.Printf("Batch submitted!\n")
		fmt.Printf("ID:   %s\n", run.ID)
		fmt.Printf("Page: %s\n", run.PageURL)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show the running batch, or one batch by ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		path := "/api/v1/batches/current"
		if len(args) == 1 {
			path = "/api/v1/batches/" + args[0]
		}
		resp, err := http.Get(serverURL + path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound && len(args) == 0 {
			fmt.Println("No batch running")
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}

		if len(args) == 0 {
			var run domain.BatchRun
			if err := json.Unmarshal(body, &run); err != nil {
				return err
			}
			printRun(&run)
			return nil
		}

		var detail app.RunDetail
		if err := json.Unmarshal(body, &detail); err != nil {
			return err
		}
		printRun(detail.Run)
		printOutcomes(detail.Outcomes)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent batches from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		repo, err := openHistory()
		if err != nil {
			return err
		}
		defer repo.Close()

		runs, err := repo.ListRuns(limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPAGE\tSTATUS\tOK\tFAILED\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				truncate(r.ID, 8),
				truncate(r.PageURL, 40),
				r.Status,
				r.Succeeded,
				r.Failed,
				humanize.Time(r.CreatedAt))
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one batch with its per-item outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistory()
		if err != nil {
			return err
		}
		defer repo.Close()

		run, err := repo.FindRun(args[0])
		if err != nil {
			return err
		}
		outcomes, err := repo.ListOutcomes(run.ID)
		if err != nil {
			return err
		}

		printRun(run)
		printOutcomes(outcomes)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistory()
		if err != nil {
			return err
		}
		defer repo.Close()

		stats, err := repo.GetStats()
		if err != nil {
			return err
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Batches:    %d\n", stats.Runs)
		fmt.Printf("  Items:      %d\n", stats.Items)
		fmt.Printf("  Succeeded:  %d\n", stats.Succeeded)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Downloaded: %s\n", humanize.IBytes(uint64(stats.Bytes)))
		for reason, n := range stats.Reasons {
			fmt.Printf("    %-20s %d\n", reason, n)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show today's category log (batch or error)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		category := logger.CategoryBatch
		if len(args) == 1 {
			category = logger.LogCategory(args[0])
		}
		if !logger.ValidCategory(category) {
			return fmt.Errorf("unknown log category %q (want one of %v)", category, logger.Categories)
		}

		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		reader := logger.NewLogReader(config.Logging.LogsDir)
		var entries []logger.LogEntry
		if search != "" {
			entries, err = reader.SearchLogs(category, time.Now(), search, limit)
		} else {
			entries, err = reader.ReadTodayLogs(category, limit)
		}
		if err != nil {
			return err
		}

		for _, e := range entries {
			if jsonOutput {
				data, _ := json.Marshal(e)
				fmt.Println(string(data))
				continue
			}
			fmt.Printf("%s %-5s %s", e.Timestamp, e.Level, e.Message)
			for k, v := range e.Fields {
				fmt.Printf(" %s=%v", k, v)
			}
			fmt.Println()
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the current configuration to a YAML file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(os.Getenv("HOME"), ".vgrab", "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}

		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := app.SaveConfig(config, path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of batches to show")
	logsCmd.Flags().IntP("limit", "n", 100, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringP("search", "s", "", "Only show entries containing this text")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
}

func openHistory() (*infrastructure.SQLiteHistoryRepository, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if !config.History.Enabled {
		return nil, fmt.Errorf("history is disabled (history.enabled=false)")
	}
	if _, err := os.Stat(config.History.DatabasePath); err != nil {
		return nil, fmt.Errorf("no history database at %s", config.History.DatabasePath)
	}
	return infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath)
}

func printRun(run *domain.BatchRun) {
	fmt.Printf("Batch Details:\n")
	fmt.Printf("  ID:            %s\n", run.ID)
	fmt.Printf("  Page:          %s\n", run.PageURL)
	fmt.Printf("  Status:        %s\n", run.Status)
	fmt.Printf("  Discovered:    %d\n", run.Discovered)
	fmt.Printf("  Filtered:      %d\n", run.Filtered)
	fmt.Printf("  Out of window: %d\n", run.OutOfWindow)
	fmt.Printf("  Succeeded:     %d\n", run.Succeeded)
	fmt.Printf("  Failed:        %d\n", run.Failed)
	fmt.Printf("  Created:       %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.ErrorMessage != "" {
		fmt.Printf("  Error:         %s\n", run.ErrorMessage)
	}
}

func printOutcomes(outcomes []*domain.OutcomeRecord) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tSTATUS\tSIZE\tDETAIL")
	for _, o := range outcomes {
		detail := o.DestinationPath
		if o.Status == domain.OutcomeFailed {
			detail = fmt.Sprintf("%s: %s", o.Reason, truncate(o.ErrorMessage, 60))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			o.Ordinal,
			truncate(o.Title, 40),
			o.Status,
			humanize.IBytes(uint64(o.BytesWritten)),
			detail)
	}
	w.Flush()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
