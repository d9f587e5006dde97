package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailwatch/internal/display"
)

var uploadName string

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Add a file to the local file store for use with --attach-ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := uploadName
		if name == "" {
			name = filepath.Base(args[0])
		}

		ref, err := store.SaveFile(cmd.Context(), name, data)
		if err != nil {
			return err
		}
		logger.WithField("file_id", ref.Path).WithField("size", len(data)).Debug("file uploaded")

		if outputFormat != "text" {
			return writeStructured(cmd, ref)
		}
		if quietFlag {
			fmt.Fprintln(cmd.OutOrStdout(), ref.Path)
			return nil
		}
		display.SuccessMsg(cmd.OutOrStdout(), "Uploaded %s as %s", name, ref.Path)
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List files in the local file store",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := store.ListFiles(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat != "text" {
			return writeStructured(cmd, files)
		}

		w := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintln(w, "No files stored.")
			return nil
		}
		for _, f := range files {
			fmt.Fprintf(w, "  %s  %-32s %8d bytes  %s\n",
				display.Dim.Render(f.ID), display.Truncate(f.Name, 32), f.Size, display.Dim.Render(display.TimeAgo(f.CreatedAt)))
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "Stored file name (default: base name of FILE)")
	rootCmd.AddCommand(uploadCmd, filesCmd)
}
