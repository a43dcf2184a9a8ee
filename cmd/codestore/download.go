package main

import (
	"fmt"
	"os"

	"github.com/knights-analytics/hugot"
	"github.com/spf13/cobra"
)

const defaultLocalModel = "jinaai/jina-embeddings-v2-base-code"

func downloadModelCmd() *cobra.Command {
	var (
		model    string
		onnxPath string
	)

	cmd := &cobra.Command{
		Use:   "download-model <dest>",
		Short: "Download an ONNX embedding model for local backends",
		Long: `Download a Hugging Face model in ONNX format into dest. Point a backend of
type "local" at the directory with model_dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			opts := hugot.NewDownloadOptions()
			opts.OnnxFilePath = onnxPath
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Downloading %s to %s...\n", model, dest)

			path, err := hugot.DownloadModel(model, dest, opts)
			if err != nil {
				return fmt.Errorf("download model: %w", err)
			}
			_, _ = fmt.Fprintf(out, "Model downloaded to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", defaultLocalModel, "Hugging Face model name")
	cmd.Flags().StringVar(&onnxPath, "onnx-file", "onnx/model.onnx", "Path of the ONNX file inside the model repository")

	return cmd
}
