package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xfer/pkg/client"
)

func newGetCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a URL",
		Long: `Fetch a URL and print the response body.

Examples:
  xfer get https://example.com
  xfer get -i -L http://example.com/moved
  xfer get -o page.html https://example.com
  xfer get file:///etc/hostname`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				res, err := a.client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), res)
			}
			return a.download(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the body to a file instead of stdout")

	return cmd
}

func newHeadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "head <url>",
		Short: "Fetch only the response headers of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Head(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = io.WriteString(cmd.OutOrStdout(), res.Header)
			return res.Err
		},
	}
}

func newPostCmd(a *app) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Send data with POST",
		Long: `Send data with POST and print the response body.

The data is taken literally unless it starts with '@', in which case the
rest names a file to read; "@-" reads standard input.

Examples:
  xfer post -d 'name=value' https://example.com/form
  xfer post -H 'Content-Type: application/json' -d @body.json https://example.com/api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readData(cmd, data)
			if err != nil {
				return err
			}
			res, err := a.client.Post(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return a.printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body, or @file")

	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <url> <file>",
		Short: "Upload a file",
		Long: `Upload a local file to a URL.

Examples:
  xfer put https://example.com/upload/report.csv report.csv
  xfer put file:///srv/incoming/data.bin data.bin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Put(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.printResult(cmd.OutOrStdout(), res)
		},
	}
}

func (a *app) download(cmd *cobra.Command, url, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	res, err := a.client.Download(cmd.Context(), url, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write output file: %w", cerr)
	}
	if err != nil {
		return err
	}
	if a.include {
		_, _ = io.WriteString(cmd.OutOrStdout(), res.Header)
	}
	return res.Err
}

func (a *app) printResult(out io.Writer, res client.Result) error {
	if a.include {
		_, _ = io.WriteString(out, res.Header)
	}
	_, _ = out.Write(res.Body)

	if res.Err != nil {
		a.log.Debug("transfer failed", "url", res.URL, "code", res.Code.String(), "elapsed", res.Elapsed)
	}
	return res.Err
}

func readData(cmd *cobra.Command, data string) ([]byte, error) {
	name, ok := strings.CutPrefix(data, "@")
	if !ok {
		return []byte(data), nil
	}

	var (
		body []byte
		err  error
	)
	if name == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return body, nil
}
