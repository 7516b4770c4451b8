package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/model"
)

var (
	identifyImage       string
	identifyCategory    string
	identifyDepth       string
	identifyFingerprint string
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify a single collectible from an image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "identify")
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.Request{
			Category:    model.Category(identifyCategory),
			Depth:       model.Depth(identifyDepth),
			Fingerprint: identifyFingerprint,
		}
		if identifyImage != "" {
			data, err := os.ReadFile(identifyImage)
			if err != nil {
				return eris.Wrap(err, "read image")
			}
			if cfg.Vision.MaxImageBytes > 0 && len(data) > cfg.Vision.MaxImageBytes {
				return eris.Errorf("image exceeds %d byte limit", cfg.Vision.MaxImageBytes)
			}
			req.Image = data
		}

		resp, err := env.Engine.Identify(ctx, req)
		if err != nil {
			return eris.Wrap(err, "identify")
		}

		zap.L().Info("identification complete",
			zap.Bool("success", resp.Success),
			zap.Float64("confidence", resp.Confidence),
			zap.Int("sources_successful", resp.SourcesSuccessful),
			zap.Bool("cached", resp.Cached),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	identifyCmd.Flags().StringVar(&identifyImage, "image", "", "path to the item image (required unless --fingerprint is set)")
	identifyCmd.Flags().StringVar(&identifyCategory, "category", "coins", "item category (coins, banknotes, bullion)")
	identifyCmd.Flags().StringVar(&identifyDepth, "depth", "basic", "lookup depth (basic, comprehensive, deep)")
	identifyCmd.Flags().StringVar(&identifyFingerprint, "fingerprint", "", "precomputed content fingerprint for cache lookup")
	rootCmd.AddCommand(identifyCmd)
}
