package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/menubot/core/buildinfo"
	"github.com/m3rciful/menubot/core/cmd"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/engine"
	"github.com/m3rciful/menubot/core/telegram"
	"github.com/m3rciful/menubot/core/vk"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "menubot",
		Short:         "Menu-driven community bot for Telegram and VK",
		Version:       version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot process",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Run(cmd.Options{
				ConfigPath:        configPath,
				DefaultConfigPath: "config.yaml",
				Run: func(ctx context.Context, cfg *coreconfig.Config, store engine.Store) error {
					return telegram.Run(ctx, telegram.RunOptions{Config: cfg, Store: store})
				},
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "vk",
		Short: "Run the VK bot process",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Run(cmd.Options{
				ConfigPath:        configPath,
				DefaultConfigPath: "config.yaml",
				Run: func(ctx context.Context, cfg *coreconfig.Config, store engine.Store) error {
					return vk.Run(ctx, vk.RunOptions{Config: cfg, Store: store})
				},
			})
		},
	})

	return root
}

func version() string {
	v := buildinfo.Version
	if buildinfo.Commit != "" {
		v += " (" + buildinfo.Commit + ")"
	}
	if buildinfo.Date != "" {
		v += " " + buildinfo.Date
	}
	return v
}
