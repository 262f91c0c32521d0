package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/pkg/verifier"
)

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download a finished job's results as CSV from the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")

		dl, ok := initClient().(verifier.Downloader)
		if !ok {
			return eris.New("download: client does not support downloads")
		}

		var w io.Writer = cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrap(err, "download: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		n, err := dl.Download(cmd.Context(), args[0], w)
		if err != nil {
			return err
		}
		if outPath != "" {
			zap.L().Info("download complete", zap.String("job_id", args[0]), zap.Int64("bytes", n))
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", n, outPath)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringP("out", "o", "", "write the CSV to a file instead of stdout")
	rootCmd.AddCommand(downloadCmd)
}
