package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"xfer/pkg/client"
)

func newBatchCmd(a *app) *cobra.Command {
	var listFile string

	cmd := &cobra.Command{
		Use:   "batch [url...]",
		Short: "Fetch many URLs concurrently",
		Long: `Fetch many URLs concurrently and print one line per transfer.

URLs come from the arguments and from --file, one per line. Blank lines and
lines starting with '#' are ignored; "-" reads the list from standard input.

Examples:
  xfer batch https://example.com/a https://example.com/b
  xfer batch -f urls.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string(nil), args...)
			if listFile != "" {
				listed, err := readURLList(cmd, listFile)
				if err != nil {
					return err
				}
				urls = append(urls, listed...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given")
			}

			results, err := a.client.Batch(cmd.Context(), urls)
			if err != nil {
				return fmt.Errorf("batch failed: %w", err)
			}

			formatResults(cmd.OutOrStdout(), results)

			failed := 0
			for _, res := range results {
				if !res.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d transfers failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listFile, "file", "f", "", "Read URLs from a file")

	return cmd
}

func readURLList(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open URL list: %w", err)
		}
		defer f.Close()
		r = f
	}

	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

func formatResults(w io.Writer, results []client.Result) {
	maxURLWidth := len("URL")
	maxStatusWidth := len("STATUS")

	// find the maximum width needed for each column
	for _, res := range results {
		if n := len(formatURL(res.URL)); n > maxURLWidth {
			maxURLWidth = n
		}
		if n := len(res.Status.String()); n > maxStatusWidth {
			maxStatusWidth = n
		}
	}

	// add some padding
	maxURLWidth += 2
	maxStatusWidth += 2

	// header
	_, _ = fmt.Fprintf(w, "%-*s %-*s %-4s %10s %9s %s\n",
		maxURLWidth, "URL",
		maxStatusWidth, "STATUS",
		"CODE",
		"BYTES",
		"TIME",
		"ERROR")

	// separator line
	_, _ = fmt.Fprintf(w, "%s %s %s %s %s %s\n",
		strings.Repeat("-", maxURLWidth),
		strings.Repeat("-", maxStatusWidth),
		strings.Repeat("-", 4),
		strings.Repeat("-", 10),
		strings.Repeat("-", 9),
		strings.Repeat("-", 5)) // length of "ERROR"

	for _, res := range results {
		code := "-"
		if res.StatusCode > 0 {
			code = strconv.Itoa(res.StatusCode)
		}

		errText := ""
		if res.Err != nil {
			errText = res.Code.String()
		}

		_, _ = fmt.Fprintf(w, "%-*s %-*s %-4s %10d %9s %s\n",
			maxURLWidth, formatURL(res.URL),
			maxStatusWidth, res.Status,
			code,
			len(res.Body),
			res.Elapsed.Round(time.Millisecond),
			errText)
	}
}

func formatURL(url string) string {
	// truncate very long URLs
	maxURLLength := 80
	if len(url) > maxURLLength {
		return url[:maxURLLength-3] + "..."
	}
	return url
}
