package view

import (
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

type PathThreat struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Mitre             *Link    `json:"mitre,omitempty"`
	ConfidencePercent *int     `json:"confidencePercent,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
	CVEs              []string `json:"cves,omitempty"`
	DetailPath        string   `json:"detailPath"`
}

type PathGroup struct {
	Severity Badge        `json:"severity"`
	Count    int          `json:"count"`
	Threats  []PathThreat `json:"threats"`
}

// AttackPaths groups threats from most to least severe.
type AttackPaths struct {
	Available bool        `json:"available"`
	Project   string      `json:"project"`
	Groups    []PathGroup `json:"groups"`
}

func NewAttackPaths(a domain.Analysis) AttackPaths {
	p := AttackPaths{Project: a.Project, Groups: []PathGroup{}}
	if len(a.Analysis.Menaces) == 0 {
		return p
	}
	p.Available = true

	for _, g := range domain.GroupBySeverity(a.Analysis.Menaces) {
		group := PathGroup{Severity: BadgeFor(g.Severity), Count: len(g.Threats), Threats: []PathThreat{}}
		for _, t := range g.Threats {
			pt := PathThreat{
				Name:        t.Nom,
				Description: t.Description,
				Mitre:       MitreLink(t),
				DetailPath:  ThreatPath(a.Project, t.Nom),
			}
			if t.ScoreConfiance != nil {
				v := Percent(*t.ScoreConfiance)
				pt.ConfidencePercent = &v
			}
			pt.Recommendations = t.Recommandations
			if len(pt.Recommendations) > 3 {
				pt.Recommendations = pt.Recommendations[:3]
			}
			for _, c := range t.CVEs {
				pt.CVEs = append(pt.CVEs, c.ID)
			}
			group.Threats = append(group.Threats, pt)
		}
		p.Groups = append(p.Groups, group)
	}
	return p
}
