package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"postcms/internal/app"
	"postcms/internal/config"
	"postcms/internal/events"
	"postcms/internal/logging"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "postcms",
	Short: "postcms - block-based post editor for advisory content",
	Long: `postcms stores posts as ordered lists of heading, paragraph, image and
video blocks and renders them to HTML.

Configuration is read from postcms.yaml (working directory or
~/.config/postcms) and POSTCMS_* environment variables.

Examples:
  # Serve the editor to an MCP client over stdio
  postcms mcp

  # Render a post
  postcms render 3f2b7c1e-...`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search ./ and ~/.config/postcms)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "mcp",
			Short: "Run the MCP server on stdin/stdout",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				return app.ServeMCP(cmd.Context(), cfg, app.Options{
					Logger:  logger,
					Emitter: events.LogEmitter{Logger: logger},
					Version: version,
				})
			},
		},
		&cobra.Command{
			Use:   "posts",
			Short: "List posts, newest first",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
				list, err := a.Posts.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tBLOCKS\tUPDATED")
				for _, p := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Title, p.BlockCount, p.UpdatedAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "render <id>",
			Short: "Print a post's HTML",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				out, err := a.Posts.Render(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, out)
				return err
			}),
		},
		&cobra.Command{
			Use:   "export <id>",
			Short: "Write a post as JSON to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				return a.Posts.Export(ctx, args[0], os.Stdout)
			}),
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Create a post from an exported JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				p, err := a.Posts.Import(ctx, f)
				if err != nil {
					return err
				}
				fmt.Println(p.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete uploaded media no saved post references",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
				res, err := a.Sweep(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}),
		},
	)
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp adapts a one-shot command: it builds the app, runs fn and closes
// the app again.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, app.Options{Logger: logger, Emitter: events.LogEmitter{Logger: logger}, Version: version})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return fn(ctx, a, args)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
