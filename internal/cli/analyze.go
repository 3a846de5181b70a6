package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/threat-analyzer/internal/application/submission"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/view"
)

func startSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s
}

func newAnalyzeCommand(e *env) *cobra.Command {
	var (
		form            submission.AnalysisForm
		descriptionFile string
		attachment      string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Submit an architecture for threat analysis",
		Args:  cobra.NoArgs,
		Example: `  threatctl analyze -p "Shop API" -t "API REST" -d "Go service, MySQL, JWT auth"
  threatctl analyze -p "Shop API" -t Web --description-file archi.md -f openapi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if descriptionFile != "" {
				b, err := os.ReadFile(descriptionFile)
				if err != nil {
					return errors.Wrapf(err, "read %s", descriptionFile)
				}
				form.ArchitectureDescription = string(b)
			}
			if attachment != "" {
				b, err := os.ReadFile(attachment)
				if err != nil {
					return errors.Wrapf(err, "read %s", attachment)
				}
				form.File = &domain.Attachment{Name: filepath.Base(attachment), Content: b}
			}

			a, err := e.loadIdentified(cmd.Context())
			if err != nil {
				return err
			}
			if err := submission.Validate(&form); err != nil {
				return err
			}

			s := startSpinner(cmd.ErrOrStderr(), "Analyse en cours...")
			result, err := a.Submission.Submit(cmd.Context(), form)
			s.Stop()
			if err != nil {
				return err
			}

			res := view.NewResults(a.Analyses.List(), result.Project)
			if e.jsonOutput() {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			view.RenderResults(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.ProjectName, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&form.AppType, "type", "t", "", fmt.Sprintf("Application type %q", domain.AppTypes))
	cmd.Flags().StringVarP(&form.ArchitectureDescription, "description", "d", "", "Architecture description")
	cmd.Flags().StringVar(&descriptionFile, "description-file", "", "Read the architecture description from a file")
	cmd.Flags().StringVarP(&attachment, "file", "f", "", "Attach a .pdf, .json, .yaml or .yml description")
	cmd.MarkFlagsMutuallyExclusive("description", "description-file")
	return cmd
}

func newPDFCommand(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "pdf [project]",
		Short: "Download the PDF report of an analysis",
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

			s := startSpinner(cmd.ErrOrStderr(), "Génération du rapport PDF...")
			path, err := a.Submission.DownloadPDF(cmd.Context(), sel.Project, dir)
			s.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rapport enregistré: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", ".", "Directory the report is written to")
	return cmd
}
