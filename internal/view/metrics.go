package view

import (
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

type CoverageRow struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

type Metrics struct {
	// Available is false when the analysis carries no metrics block.
	Available         bool                  `json:"available"`
	Project           string                `json:"project"`
	Confidence        float64               `json:"confidence"`
	ConfidencePercent int                   `json:"confidencePercent"`
	ConfidenceLabel   string                `json:"confidenceLabel"`
	Coverage          []CoverageRow         `json:"coverage"`
	TotalThreats      int                   `json:"totalThreats"`
	Counts            domain.SeverityCounts `json:"counts"`
}

func NewMetrics(a domain.Analysis) Metrics {
	m := Metrics{Project: a.Project, Coverage: []CoverageRow{}}
	src := a.Dashboard.Metriques
	if src == nil {
		return m
	}

	m.Available = true
	m.Confidence = src.ScoreConfianceMoyen
	if m.Confidence <= 0 {
		m.Confidence = DefaultConfidence
	}
	m.ConfidencePercent = Percent(m.Confidence)
	m.ConfidenceLabel = ConfidenceLabel(m.Confidence)
	c := src.Couverture
	m.Coverage = []CoverageRow{
		{Label: "OWASP Top 10", Percent: c.OwaspCoverage},
		{Label: "MITRE ATT&CK", Percent: c.MitreCoverage},
		{Label: "CWE", Percent: c.CWECoverage},
		{Label: "CVSS Score", Percent: c.CVSSCoverage},
	}
	m.TotalThreats = c.TotalMenaces
	if m.TotalThreats == 0 {
		m.TotalThreats = len(a.Analysis.Menaces)
	}
	m.Counts = domain.CountBySeverity(a.Analysis.Menaces)
	return m
}

func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.9:
		return "Très haute confiance"
	case score >= 0.7:
		return "Confiance modérée"
	default:
		return "Confiance faible - vérification recommandée"
	}
}
