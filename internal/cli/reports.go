package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/threat-analyzer/internal/app"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/view"
)

// selectAnalysis returns the analysis named by args[0], or the latest one.
func selectAnalysis(a *app.App, args []string) (domain.Analysis, error) {
	if len(args) > 0 {
		sel, ok := a.Analyses.Get(args[0])
		if !ok {
			return domain.Analysis{}, domain.ErrNotFound
		}
		return sel, nil
	}
	sel, ok := a.Analyses.Latest()
	if !ok {
		return domain.Analysis{}, errors.New("Aucune analyse disponible")
	}
	return sel, nil
}

func (e *env) print(w io.Writer, v any, render func()) error {
	if e.jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render()
	return nil
}

func newReportsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"ls"},
		Short:   "List cached analyses, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			list := a.Analyses.List()
			rows := make([]view.HistoryRow, 0, len(list))
			for _, an := range list {
				rows = append(rows, view.History(an))
			}
			return e.print(cmd.OutOrStdout(), rows, func() {
				view.RenderHistory(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [project]",
		Short: "Show the results of an analysis (latest when no project is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			project := ""
			if len(args) > 0 {
				project = args[0]
			}
			res := view.NewResults(a.Analyses.List(), project)
			if project != "" && !res.Found {
				return domain.ErrNotFound
			}
			return e.print(cmd.OutOrStdout(), res, func() {
				view.RenderResults(cmd.OutOrStdout(), res)
			})
		},
	})
	return cmd
}

func newThreatCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "threat <project> <threat>",
		Short: "Show the details of one threat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := selectAnalysis(a, args[:1])
			if err != nil {
				return err
			}
			d, ok := view.NewThreatDetail(sel, args[1])
			if !ok {
				return errors.Errorf("Menace %q introuvable dans %q", args[1], sel.Project)
			}
			return e.print(cmd.OutOrStdout(), d, func() {
				view.RenderThreat(cmd.OutOrStdout(), d)
			})
		},
	}
}

func newMetricsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [project]",
		Short: "Show confidence and framework coverage of an analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := selectAnalysis(a, args)
			if err != nil {
				return err
			}
			m := view.NewMetrics(sel)
			return e.print(cmd.OutOrStdout(), m, func() {
				view.RenderMetrics(cmd.OutOrStdout(), m)
			})
		},
	}
}

func newPathsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "paths [project]",
		Short: "Show threats grouped by severity as attack paths",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := selectAnalysis(a, args)
			if err != nil {
				return err
			}
			p := view.NewAttackPaths(sel)
			return e.print(cmd.OutOrStdout(), p, func() {
				view.RenderAttackPaths(cmd.OutOrStdout(), p)
			})
		},
	}
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <project>",
		Aliases: []string{"rm"},
		Short:   "Delete every cached analysis of a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := a.Analyses.Get(args[0]); !ok {
				return domain.ErrNotFound
			}
			if err := a.Analyses.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analyse %q supprimée\n", args[0])
			if next := view.NextAfterDelete(a.Analyses.List(), args[0]); next != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Analyse courante: %s\n", next)
			}
			return nil
		},
	}
}

func newClearCommand(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached analysis of the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the history without --yes")
			}
			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			n := a.Analyses.Len()
			if err := a.Analyses.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d analyse(s) supprimée(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")
	return cmd
}
