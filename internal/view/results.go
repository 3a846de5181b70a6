// Package view derives the data shown by each screen from cached analyses.
// The same view models back the JSON routes and the terminal renderers.
package view

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

// DefaultConfidence is shown when the backend sent no average confidence.
const DefaultConfidence = 0.8

type Badge struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func BadgeFor(s domain.Severity) Badge {
	switch s {
	case domain.SeverityCritical:
		return Badge{Label: string(s), Icon: "🔴", Color: "red"}
	case domain.SeverityHigh:
		return Badge{Label: string(s), Icon: "🟠", Color: "orange"}
	case domain.SeverityMedium:
		return Badge{Label: string(s), Icon: "🟡", Color: "yellow"}
	case domain.SeverityLow:
		return Badge{Label: string(s), Icon: "🟢", Color: "green"}
	default:
		return Badge{Label: string(s), Icon: "⚪", Color: "gray"}
	}
}

type ThreatRow struct {
	Name                string   `json:"name"`
	Severity            Badge    `json:"severity"`
	Description         string   `json:"description"`
	Recommendations     []string `json:"recommendations,omitempty"`
	MoreRecommendations int      `json:"moreRecommendations,omitempty"`
	DetailPath          string   `json:"detailPath"`
}

type HistoryRow struct {
	Project     string    `json:"project"`
	ThreatCount int       `json:"threatCount"`
	ScoreLabel  string    `json:"scoreLabel"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type Results struct {
	// Empty means no analysis exists at all.
	Empty bool `json:"empty"`
	// Found is false when a named project is not in the cache.
	Found bool `json:"found"`

	Project           string                `json:"project,omitempty"`
	Score             float64               `json:"score"`
	ScoreLabel        string                `json:"scoreLabel,omitempty"`
	ThreatCount       int                   `json:"threatCount"`
	Counts            domain.SeverityCounts `json:"counts"`
	RiskLabel         string                `json:"riskLabel,omitempty"`
	NiveauGlobal      string                `json:"niveauGlobal,omitempty"`
	Recommendations   int                   `json:"recommendations"`
	ConfidencePercent int                   `json:"confidencePercent"`
	KeyThreats        []ThreatRow           `json:"keyThreats"`
	Threats           []ThreatRow           `json:"threats"`
	CreatedAt         time.Time             `json:"createdAt,omitzero"`

	// Others lists every other cached analysis, most recent first.
	Others []HistoryRow `json:"others"`
}

// NewResults selects the analysis for project, or the most recent one when
// project is empty, and derives the results screen.
func NewResults(list []domain.Analysis, project string) Results {
	r := Results{
		Empty:      len(list) == 0,
		KeyThreats: []ThreatRow{},
		Threats:    []ThreatRow{},
		Others:     []HistoryRow{},
	}

	var (
		a  domain.Analysis
		ok bool
	)
	if project == "" {
		if len(list) > 0 {
			a, ok = list[0], true
		}
	} else {
		for _, it := range list {
			if it.Project == project {
				a, ok = it, true
				break
			}
		}
	}

	for _, it := range list {
		if ok && it.Project == a.Project {
			continue
		}
		r.Others = append(r.Others, History(it))
	}
	if !ok {
		return r
	}

	r.Found = true
	r.Project = a.Project
	r.Score = a.ScoreRisque
	r.ScoreLabel = ScoreLabel(a.ScoreRisque)
	r.ThreatCount = len(a.Analysis.Menaces)
	r.CreatedAt = a.CreatedAt
	if a.Dashboard.Statistiques != nil {
		r.Counts = a.Dashboard.Statistiques.ParGravite
	}
	r.RiskLabel = RiskLabel(r.ThreatCount, r.Counts)
	r.NiveauGlobal = "FAIBLE"
	if r.ThreatCount > 0 {
		r.NiveauGlobal = strings.ToUpper(a.NiveauGlobal())
	}

	conf := DefaultConfidence
	if m := a.Dashboard.Metriques; m != nil && m.ScoreConfianceMoyen > 0 {
		conf = m.ScoreConfianceMoyen
	}
	r.ConfidencePercent = Percent(conf)

	for _, t := range a.Analysis.Menaces {
		r.Recommendations += len(t.Recommandations)
		r.Threats = append(r.Threats, threatRow(a, t.Nom, t.Gravite, t.Description, t.Recommandations))
	}
	for _, k := range a.Dashboard.MenacesCles {
		var recs []string
		if t, found := a.ThreatByName(k.Nom); found {
			recs = t.Recommandations
		}
		r.KeyThreats = append(r.KeyThreats, threatRow(a, k.Nom, k.Gravite, k.Description, recs))
	}
	return r
}

func threatRow(a domain.Analysis, name string, sev domain.Severity, desc string, recs []string) ThreatRow {
	row := ThreatRow{
		Name:        name,
		Severity:    BadgeFor(sev),
		Description: desc,
		DetailPath:  ThreatPath(a.Project, name),
	}
	if len(recs) > 2 {
		row.Recommendations = recs[:2]
		row.MoreRecommendations = len(recs) - 2
	} else {
		row.Recommendations = recs
	}
	return row
}

// History is the one-line summary used in analysis lists.
func History(a domain.Analysis) HistoryRow {
	return HistoryRow{
		Project:     a.Project,
		ThreatCount: len(a.Analysis.Menaces),
		ScoreLabel:  ScoreLabel(a.ScoreRisque),
		Path:        ReportPath(a.Project),
		CreatedAt:   a.CreatedAt,
	}
}

// RiskLabel is Critique when any critical threat is counted, Détectées
// for other threats and Aucune without threats.
func RiskLabel(threats int, counts domain.SeverityCounts) string {
	switch {
	case threats == 0:
		return "Aucune"
	case counts.Critical > 0:
		return "Critique"
	default:
		return "Détectées"
	}
}

func ScoreLabel(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64) + "/100"
}

// Percent turns a [0,1] ratio into a rounded percentage.
func Percent(v float64) int {
	return int(math.Round(v * 100))
}

func ReportPath(project string) string {
	return "/reports/" + url.PathEscape(project)
}

func ThreatPath(project, threat string) string {
	return "/threats/" + url.PathEscape(project) + "/" + url.PathEscape(threat)
}

// NextAfterDelete is the analysis to show after deleting project while it
// was displayed: the first remaining entry, or "" when none is left.
func NextAfterDelete(list []domain.Analysis, project string) string {
	for _, a := range list {
		if a.Project != project {
			return a.Project
		}
	}
	return ""
}
