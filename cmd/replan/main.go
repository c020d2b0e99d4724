// Command replan inspects the stream catalog and validates configurations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	replan "github.com/zlatanajanovic/SS-Replan"
)

func main() {
	if err := newApp(os.Stdout).Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	root   *cobra.Command
	stdout io.Writer
}

func newApp(stdout io.Writer) *app {
	a := &app{stdout: stdout}
	a.root = &cobra.Command{
		Use:           "replan",
		Short:         "Generate-and-certify streams for kitchen manipulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.root.SetOut(stdout)
	a.root.AddCommand(a.newStreamsCmd(), a.newConfigCmd())
	return a
}

func (a *app) Execute(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

func (a *app) newStreamsCmd() *cobra.Command {
	var kind string
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List the stream catalog",
		Long: `List every stream the registry exposes with its positional signature.

Examples:
  replan streams
  replan streams --kind test
  replan streams --yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected []replan.Descriptor
			for _, d := range replan.Catalog() {
				if kind == "" || string(d.Kind) == kind {
					selected = append(selected, d)
				}
			}
			if len(selected) == 0 {
				return fmt.Errorf("no streams of kind %q", kind)
			}
			if asYAML {
				return yaml.NewEncoder(a.stdout).Encode(selected)
			}
			for _, d := range selected {
				fmt.Fprintf(a.stdout, "%-32s %-9s %v -> %v\n", d.Name, d.Kind, d.Inputs, d.Outputs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list streams of this kind (generator, function, test)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the catalog as YAML")
	return cmd
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect stream configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate <path>",
			Short: "Load a YAML configuration over the defaults and validate it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := replan.LoadConfig(args[0])
				if err != nil {
					return fmt.Errorf("validation failed: %w", err)
				}
				fmt.Fprintf(a.stdout, "configuration is valid (collisions=%t learned=%t teleport=%t)\n",
					cfg.Collisions, cfg.Learned, cfg.Teleport)
				return nil
			},
		},
		&cobra.Command{
			Use:   "defaults",
			Short: "Print the default configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return yaml.NewEncoder(a.stdout).Encode(replan.DefaultConfig())
			},
		},
	)
	return cmd
}
