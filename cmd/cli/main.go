package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cochaviz/bakery/config"
	"github.com/cochaviz/bakery/internal/build"
	"github.com/cochaviz/bakery/internal/logging"
	"github.com/cochaviz/bakery/internal/setup"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &application{levelVar: &levelVar}
	app.setLogger(logging.NewCLI(os.Stderr, &levelVar))

	root := newRootCommand(app)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			app.logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		app.logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// application carries state shared by all commands.
type application struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar
	options  config.Options
}

func (a *application) setLogger(logger *slog.Logger) {
	a.logger = logger
	slog.SetDefault(logger)
	setup.SetLogger(logger.With("component", "setup"))
}

func newRootCommand(app *application) *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	root := &cobra.Command{
		Use:           "bakery",
		Short:         "Customize embedded Linux root filesystems with recipes",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.options.ProjectDir, "project-dir", config.DefaultProjectDir, "Project directory")
	flags.StringVar(&app.options.ConfigFile, "config", "", "Project configuration file (default rugpi-bakery.toml in the project directory)")
	flags.StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	flags.StringVar(&logFormat, "log-format", defaultLogFormat, "Log output format (text, json)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		mode, err := logging.ParseMode(logFormat)
		if err != nil {
			return err
		}
		app.levelVar.Set(level)
		app.setLogger(logging.New(mode, os.Stderr, app.levelVar))
		return nil
	}

	root.AddCommand(
		newCustomizeCommand(app),
		newPlanCommand(app),
		newRecipesCommand(app),
		newLayersCommand(app),
	)
	return root
}

func verifySetup(logger *slog.Logger) error {
	logger = logger.With("action", "verify_setup")
	logger.Debug("verifying host prerequisites")
	if err := setup.Verify(); err != nil {
		logger.Error("setup verification failed", "error", err)
		return err
	}
	return nil
}

func newCustomizeCommand(app *application) *cobra.Command {
	var layer string

	cmd := &cobra.Command{
		Use:   "customize <source-archive> <destination-archive>",
		Args:  cobra.ExactArgs(2),
		Short: "Apply the project's recipes to a system archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			request := build.CustomizeRequest{
				Source:      strings.TrimSpace(args[0]),
				Destination: strings.TrimSpace(args[1]),
				Layer:       layer,
			}
			cmdLogger := app.logger.With("command", "customize")

			if err := verifySetup(cmdLogger); err != nil {
				return err
			}

			if err := config.Customize(cmd.Context(), app.options, request, cmdLogger); err != nil {
				cmdLogger.Error("customization failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Use the recipes of this layer instead of the project configuration; the source archive stands in for the layer's parent")

	return cmd
}

func newPlanCommand(app *application) *cobra.Command {
	var (
		layer  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the recipes a customization would apply, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := app.logger.With("command", "plan")

			planned, err := config.Plan(app.options, layer, cmdLogger)
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), format, planned)
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Plan the recipes of this layer instead of the project configuration")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, yaml)")

	return cmd
}

func writePlan(w io.Writer, format string, planned []config.PlannedRecipe) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		for i, recipe := range planned {
			label := recipe.Name
			if recipe.Description != "" {
				label = fmt.Sprintf("%s (%s)", recipe.Name, recipe.Description)
			}
			fmt.Fprintf(w, "[%2d/%d] %s priority=%d\n", i+1, len(planned), label, recipe.Priority)
			for _, name := range slices.Sorted(maps.Keys(recipe.Parameters)) {
				fmt.Fprintf(w, "    %s = %q\n", name, recipe.Parameters[name])
			}
			for _, step := range recipe.Steps {
				fmt.Fprintf(w, "    - %s\n", step)
			}
		}
		return nil
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(planned); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown plan format %q", format)
	}
}

func newRecipesCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Inspect the recipes available to the project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every recipe with its default flag and priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := config.Recipes(app.options)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				app.logger.Warn("no recipes available", "project_dir", app.options.ProjectDir)
				return nil
			}
			out := cmd.OutOrStdout()
			for _, recipe := range summaries {
				fmt.Fprintf(out, "%s\t(default: %t, priority: %d)\t%s\n", recipe.Name, recipe.Default, recipe.Priority, recipe.Description)
			}
			return nil
		},
	})
	return cmd
}

func newLayersCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "Inspect the layers of the project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List layers with their architecture variants",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := config.Layers(app.options)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				app.logger.Warn("no layers defined", "project_dir", app.options.ProjectDir)
				return nil
			}
			out := cmd.OutOrStdout()
			for _, layer := range summaries {
				parent := layer.Parent
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(out, "%s\t(%s)\tparent %s\tmodified %s\n", layer.Name, strings.Join(layer.Architectures, ", "), parent, layer.Modified)
			}
			return nil
		},
	})
	return cmd
}
