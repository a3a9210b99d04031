package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Provider and model management",
}

type modelInfo struct {
	Provider string
	Models   []string
	// Vision is true when the listed models accept page images.
	Vision bool
}

var knownModels = []modelInfo{
	{
		Provider: "anthropic",
		Models: []string{
			"claude-sonnet-4-20250514",
			"claude-opus-4-1-20250805",
			"claude-3-5-haiku-20241022",
		},
		Vision: true,
	},
	{
		Provider: "openai",
		Models: []string{
			"gpt-4.1",
			"gpt-4.1-mini",
			"gpt-4o",
			"o3-mini",
		},
		Vision: true,
	},
	{
		Provider: "gemini",
		Models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-pro",
		},
		Vision: true,
	},
	{
		Provider: "ollama",
		Models: []string{
			"llama3.2-vision",
			"llama3.3",
			"qwen2.5",
			"mistral",
		},
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known providers and models",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, info := range knownModels {
			suffix := ""
			if info.Vision {
				suffix = " (images supported)"
			}
			fmt.Fprintf(out, "%s%s:\n", info.Provider, suffix)
			for _, m := range info.Models {
				fmt.Fprintf(out, "  - %s\n", m)
			}
			fmt.Fprintln(out)
		}
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate provider credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Checking %s (%s)...\n", cfg.Provider, cfg.Model)

		p, err := providers.New(cfg.Provider, cfg.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		_, err = p.Complete(ctx, providers.Request{
			SystemPrompt: "Respond with exactly: ok",
			UserPrompt:   "ping",
			MaxTokens:    10,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			if providers.IsAuthError(err) {
				exitCode = ExitAuthError
			} else {
				exitCode = ExitRuntimeError
			}
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK: %s is configured and responding\n", cfg.Provider)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVar(&flagProvider, "provider", "", "Provider to check")
	modelsDoctorCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
}
