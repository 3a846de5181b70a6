package submission

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/application/analyses"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
)

// Identity gives the active user, nil when anonymous.
type Identity interface {
	Current() *identity.User
}

// Service sends analysis requests and fetches PDF reports.
type Service struct {
	analyzer domain.Analyzer
	renderer domain.ReportRenderer
	cache    *analyses.Service
	identity Identity
}

func NewService(analyzer domain.Analyzer, renderer domain.ReportRenderer, cache *analyses.Service, id Identity) *Service {
	return &Service{analyzer: analyzer, renderer: renderer, cache: cache, identity: id}
}

// Submit validates the form, asks the backend for an analysis and records
// the result in the cache. A result carrying an error field is not cached.
func (s *Service) Submit(ctx context.Context, f AnalysisForm) (domain.Analysis, error) {
	if err := Validate(&f); err != nil {
		return domain.Analysis{}, err
	}

	sub := domain.Submission{
		ProjectName:             f.ProjectName,
		AppType:                 f.AppType,
		ArchitectureDescription: f.ArchitectureDescription,
		File:                    f.File,
	}
	if u := s.identity.Current(); u.Valid() {
		sub.UserID = u.ID
	}

	a, err := s.analyzer.Analyze(ctx, sub)
	if err != nil {
		return domain.Analysis{}, err
	}
	if a.Error != "" {
		return domain.Analysis{}, &domain.BackendError{Status: 200, Message: a.Error}
	}
	if a.Project == "" {
		a.Project = f.ProjectName
	}

	added, err := s.cache.Add(ctx, a)
	if err != nil {
		return domain.Analysis{}, err
	}
	slog.Info("analysis recorded", "project", added.Project, "score", added.ScoreRisque, "threats", len(added.Analysis.Menaces))
	return added, nil
}

// PDFFilename is the download name of a project's report.
func PDFFilename(project string) string {
	name := slug.Make(project)
	if name == "" {
		name = "analyse"
	}
	return name + "_rapport.pdf"
}

// RenderPDF asks the backend to render the cached analysis of project.
func (s *Service) RenderPDF(ctx context.Context, project string) (string, []byte, error) {
	a, ok := s.cache.Get(project)
	if !ok {
		return "", nil, domain.ErrNotFound
	}
	pdf, err := s.renderer.GeneratePDF(ctx, a)
	if err != nil {
		return "", nil, err
	}
	return PDFFilename(a.Project), pdf, nil
}

// DownloadPDF renders the report and writes it into dir.
func (s *Service) DownloadPDF(ctx context.Context, project, dir string) (string, error) {
	name, pdf, err := s.RenderPDF(ctx, project)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
