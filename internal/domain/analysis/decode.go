package analysis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// Decode parses a backend analysis payload and fills every default views rely on.
func Decode(data []byte) (Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	Normalize(&a)
	return a, nil
}

// Normalize applies the boundary defaults in place. It is idempotent.
func Normalize(a *Analysis) {
	if a.Analysis.Menaces == nil {
		a.Analysis.Menaces = []Threat{}
	}
	for i := range a.Analysis.Menaces {
		normalizeThreat(&a.Analysis.Menaces[i])
	}

	if a.ScoreRisque < 0 || math.IsNaN(a.ScoreRisque) {
		a.ScoreRisque = 0
	}

	d := &a.Dashboard
	if d.Statistiques == nil {
		counts := CountBySeverity(a.Analysis.Menaces)
		d.Statistiques = &Statistics{
			TotalMenaces: len(a.Analysis.Menaces),
			ParGravite:   counts,
		}
	}
	if d.MenacesCles == nil {
		d.MenacesCles = []KeyThreat{}
		for _, t := range a.Analysis.Menaces {
			if t.Gravite == SeverityCritical || t.Gravite == SeverityHigh {
				d.MenacesCles = append(d.MenacesCles, KeyThreat{Nom: t.Nom, Gravite: t.Gravite, Description: t.Description})
			}
		}
	}
	for i := range d.MenacesCles {
		if s, ok := ParseSeverity(string(d.MenacesCles[i].Gravite)); ok {
			d.MenacesCles[i].Gravite = s
		}
	}
	if d.Metriques != nil {
		d.Metriques.ScoreConfianceMoyen = clamp01(d.Metriques.ScoreConfianceMoyen)
	}
}

func normalizeThreat(t *Threat) {
	t.Nom = strings.TrimSpace(t.Nom)
	if s, ok := ParseSeverity(string(t.Gravite)); ok {
		t.Gravite = s
	}
	if t.ScoreConfiance != nil {
		v := clamp01(*t.ScoreConfiance)
		t.ScoreConfiance = &v
	}

	raw := strings.TrimSpace(string(t.CVSSScore))
	if strings.HasPrefix(raw, "CVSS:") {
		score, err := scoreVector(raw)
		if err != nil {
			slog.Debug("could not score cvss vector", "vector", raw, "err", err)
			return
		}
		t.CVSSVector = raw
		t.CVSSScore = Text(fmt.Sprintf("%.1f", score))
	}
}

func scoreVector(vector string) (float64, error) {
	switch {
	case strings.HasPrefix(vector, "CVSS:3.0"):
		c, err := gocvss30.ParseVector(vector)
		if err != nil {
			return 0, err
		}
		return c.BaseScore(), nil
	case strings.HasPrefix(vector, "CVSS:3.1"):
		c, err := gocvss31.ParseVector(vector)
		if err != nil {
			return 0, err
		}
		return c.BaseScore(), nil
	case strings.HasPrefix(vector, "CVSS:4.0"):
		c, err := gocvss40.ParseVector(vector)
		if err != nil {
			return 0, err
		}
		return c.Score(), nil
	}
	return 0, fmt.Errorf("unsupported cvss version in %q", vector)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
