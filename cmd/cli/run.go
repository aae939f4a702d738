package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Download the videos of a playlist page",
	Long: `Download the videos of a playlist page in this process.

The page URL may be given without a scheme; https is assumed. When it is
omitted you are prompted for it. QUALITY, PLAYER, FROM, TO and NAME are read
from the environment or a .env file and can be overridden with flags.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

// runFlags maps run flags onto config keys
var runFlags = map[string]string{
	"from":     "batch.from",
	"to":       "batch.to",
	"quality":  "batch.quality",
	"player":   "batch.player",
	"name":     "batch.name",
	"dir":      "download.dir",
	"headless": "browser.headless",
}

func init() {
	runCmd.Flags().Int("from", 1, "First item to download (1-based, inclusive)")
	runCmd.Flags().Int("to", 12, "Last item to download (1-based, inclusive)")
	runCmd.Flags().String("quality", "1080p", "Preferred stream quality")
	runCmd.Flags().String("player", "https://csst", "Only download items whose player URL starts with this")
	runCmd.Flags().String("name", "Title", "File name prefix")
	runCmd.Flags().String("dir", "./downloads", "Destination directory")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
}

func runBatch(cmd *cobra.Command, args []string) error {
	var bindings []app.FlagBinding
	for name, key := range runFlags {
		bindings = append(bindings, app.FlagBinding{Key: key, Flag: cmd.Flags().Lookup(name)})
	}

	config, err := app.LoadConfig(configPath, bindings...)
	if err != nil {
		return err
	}

	var pageURL string
	if len(args) == 1 {
		pageURL = args[0]
	} else {
		pageURL, err = readPageURL(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}

	components, err := app.Bootstrap(config, nil)
	if err != nil {
		return err
	}
	defer components.Close()

	printer := newProgressPrinter(os.Stdout)
	components.Runner.OnProgress(printer.Print)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := domain.NewBatchRun(pageURL)
	result, err := components.Runner.RunPage(ctx, run)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, result)
	return exitError(result)
}

// exitError fails the command when a non-empty batch downloaded nothing
func exitError(result *domain.BatchResult) error {
	if !result.Empty() && result.Succeeded() == 0 {
		return domain.ErrNoSuccesses
	}
	return nil
}

// readPageURL prompts once for the page URL
func readPageURL(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Provide a url: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no url provided")
	}
	return line, nil
}

// progressPrinter renders ProgressEvents as one updating line per item
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) Print(ev domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	end := ""
	if ev.Done {
		end = "\n"
	}
	fmt.Fprintf(p.out, "\r%s%s", formatProgress(ev), end)
}

func formatProgress(ev domain.ProgressEvent) string {
	label := ev.Title
	if label == "" {
		label = fmt.Sprintf("item %d", ev.Ordinal)
	}
	if !ev.Known {
		return fmt.Sprintf("[%d] %s: %s", ev.Ordinal, label, humanize.IBytes(uint64(ev.Downloaded)))
	}
	return fmt.Sprintf("[%d] %s: %.2f%% (%s / %s)", ev.Ordinal, label, ev.Percent,
		humanize.IBytes(uint64(ev.Downloaded)), humanize.IBytes(uint64(ev.Total)))
}

func printSummary(out io.Writer, result *domain.BatchResult) {
	if result.Empty() {
		fmt.Fprintln(out, "No videos found")
		return
	}

	fmt.Fprintf(out, "\nDone: %d succeeded, %d failed", result.Succeeded(), result.Failed())
	if n := len(result.Filtered); n > 0 {
		fmt.Fprintf(out, ", %d skipped by player prefix", n)
	}
	fmt.Fprintln(out)

	for _, o := range result.Outcomes {
		if o.IsSuccess() {
			fmt.Fprintf(out, "  ok     %2d  %s (%s)\n", o.Item.Ordinal, o.DestinationPath, humanize.IBytes(uint64(o.BytesWritten)))
		} else {
			fmt.Fprintf(out, "  failed %2d  %s: %s\n", o.Item.Ordinal, o.Reason, o.Error)
		}
	}
}
