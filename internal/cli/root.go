// Package cli implements the fileuploader command line client.
package cli

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fileuploader",
		Short: "Upload files as multipart/form-data",
		Long:  "Command Line Interface to post a local file to an HTTP endpoint as a multipart/form-data request and follow its progress",
		// Failed uploads are already printed as a state.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newUploadCmd())

	return rootCmd
}

// Execute runs the command selected by the process arguments.
func Execute() error {
	return newRootCmd().Execute()
}
