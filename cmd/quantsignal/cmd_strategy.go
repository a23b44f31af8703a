package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quantsignal/internal/app"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

var (
	stratName     string
	stratDesc     string
	stratCode     string
	stratFile     string
	stratGenerate string
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Manage persisted strategies",
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategies in insertion order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			list, err := a.Strategies.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tNAME\tSUMMARY")
			for _, st := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Status, st.Name, strategy.Describe(st.Code))
			}
			return w.Flush()
		})
	},
}

var strategyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one strategy with its compiled summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, ok, err := a.Strategies.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("strategy %s not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:          %s\n", st.ID)
			fmt.Fprintf(out, "name:        %s\n", st.Name)
			fmt.Fprintf(out, "status:      %s\n", st.Status)
			fmt.Fprintf(out, "created:     %s\n", st.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "description: %s\n", st.Description)
			fmt.Fprintf(out, "summary:     %s\n", strategy.Describe(st.Code))
			fmt.Fprintf(out, "code:\n%s\n", st.Code)
			return nil
		})
	},
}

var strategyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a strategy from inline code, a file, or a description",
	Long: `Add a strategy. Exactly one source is used: --code, --file, or --generate.
The document is compiled before it is stored.

Examples:
  quantsignal strategy add --name "SMA 10/30" --code '{"version":1,"kind":"sma_cross","params":{"fast":10,"slow":30}}'
  quantsignal strategy add --file strategies/rsi.json
  quantsignal strategy add --generate "go long when close breaks the 20-day high"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			code, desc, err := strategySource(ctx, a)
			if err != nil {
				return err
			}
			compiled, err := strategy.Compile(code)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(stratName)
			if name == "" {
				name = compiled.Summary
			}
			id, err := a.Strategies.Add(ctx, name, desc, code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s  %s\n", id, compiled.Summary)
			return nil
		})
	},
}

var strategyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ok, err := a.Strategies.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("strategy %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ deleted %s\n", args[0])
			return nil
		})
	},
}

func statusCmd(use string, status strategystore.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: "Set a strategy " + string(status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				ok, err := a.Strategies.SetStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("strategy %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s -> %s\n", args[0], status)
				return nil
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(
		strategyListCmd,
		strategyShowCmd,
		strategyAddCmd,
		strategyDeleteCmd,
		statusCmd("enable", strategystore.StatusActive),
		statusCmd("disable", strategystore.StatusInactive),
	)
	strategyAddCmd.Flags().StringVar(&stratName, "name", "", "display name (default: compiled summary)")
	strategyAddCmd.Flags().StringVar(&stratDesc, "description", "", "free-text description")
	strategyAddCmd.Flags().StringVar(&stratCode, "code", "", "strategy document JSON")
	strategyAddCmd.Flags().StringVar(&stratFile, "file", "", "read the strategy document from a file")
	strategyAddCmd.Flags().StringVar(&stratGenerate, "generate", "", "synthesize the document from a description")
	strategyAddCmd.MarkFlagsMutuallyExclusive("code", "file", "generate")
}

func strategySource(ctx context.Context, a *app.App) (code, description string, err error) {
	description = strings.TrimSpace(stratDesc)
	switch {
	case stratCode != "":
		return stratCode, description, nil
	case stratFile != "":
		raw, err := os.ReadFile(stratFile)
		if err != nil {
			return "", "", err
		}
		return string(raw), description, nil
	case stratGenerate != "":
		code, err := a.Synth.Generate(ctx, stratGenerate)
		if err != nil {
			return "", "", err
		}
		if description == "" {
			description = stratGenerate
		}
		return code, description, nil
	}
	return "", "", errors.New("one of --code, --file or --generate is required")
}
