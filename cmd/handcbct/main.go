package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/config"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/env"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/envvar"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/logger"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/logic"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// defaultConfigFile resolves the config file path: HANDCBCT_CONFIG env var
// or <config-dir>/config.yaml.
func defaultConfigFile() string {
	if p := os.Getenv(envvar.HandCBCTConfig); p != "" {
		return p
	}
	return filepath.Join(config.DefaultConfigPath(), "config.yaml")
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		lgc        *logic.Logic
		cfg        *config.Config
	)

	cmd := &cobra.Command{
		Use:   "handcbct",
		Short: "Hand CBCT nnU-Net segmentation module",
		Long:  "Provision nnU-Net model weights and run hand CBCT segmentations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			if _, statErr := os.Stat(configPath); statErr == nil {
				cfg, err = config.LoadAndValidate(configPath)
				if err != nil {
					return err
				}
			} else {
				cfg = config.Default()
			}

			slog.SetDefault(
				logger.New(env.FromEnv(),
					logger.WithLogToFile(cfg.Logging.ToFile),
					logger.WithLogFile(cfg.Logging.File),
				),
			)

			lgc = logic.New(cfg)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigFile(), "Path to config file")

	cmd.AddCommand(weightsCmd(&lgc, &cfg))
	cmd.AddCommand(validateCmd(&lgc))
	cmd.AddCommand(segmentCmd(&lgc))
	cmd.AddCommand(runCmd(&lgc, &configPath))

	return cmd
}

// runCmd keeps the module resident: it runs setup once, then re-binds the
// engine parameters whenever the config file changes.
func runCmd(lgc **logic.Logic, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run setup and stay resident, re-binding on config changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*lgc).Setup(cmd.Context()); err != nil {
				return err
			}

			watcher, err := config.NewWatcher(*configPath, func(cfg *config.Config, err error) {
				if err != nil {
					slog.Error("Failed to reload config", "error", err)
					return
				}
				(*lgc).OnConfigReload(cfg)
			})
			if err != nil {
				return err
			}

			slog.Info("Module ready", "config", *configPath, "reloads", watcher.ReloadCount())
			<-cmd.Context().Done()
			return (*lgc).Close()
		},
	}
}

func weightsCmd(lgc **logic.Logic, cfg **config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Manage model weights",
	}

	var force bool
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Download the configured weight set",
		RunE: func(cmd *cobra.Command, args []string) error {
			downloaded, err := (*lgc).ProvisionWeights(cmd.Context(), force)
			if err != nil {
				return err
			}
			if downloaded {
				fmt.Fprintln(cmd.OutOrStdout(), "weights downloaded")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "weights already present")
			}
			return nil
		},
	}
	pull.Flags().BoolVar(&force, "force", false, "Remove any existing weight set and re-download")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show weight set presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := (*lgc).Store()
			name := (*cfg).Weights.Set
			if store.Exists(name) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: present at %s\n", name, store.Path(name))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: absent\n", name)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Delete the configured weight set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*lgc).Store().Remove((*cfg).Weights.Set)
		},
	}

	cmd.AddCommand(pull, status, remove)
	return cmd
}

func validateCmd(lgc **logic.Logic) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run setup and report model directory validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*lgc).Setup(cmd.Context()); err != nil {
				return err
			}
			valid, diagnostic := (*lgc).IsValid()
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %t (%s)\n", valid, diagnostic)
			return nil
		},
	}
}

func segmentCmd(lgc **logic.Logic) *cobra.Command {
	return &cobra.Command{
		Use:   "segment <input> <output>",
		Short: "Segment a hand CBCT volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*lgc).Process(cmd.Context(), args[0], args[1])
		},
	}
}
