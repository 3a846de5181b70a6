package view

import (
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
)

type Home struct {
	User          *identity.User `json:"user"`
	Backend       string         `json:"backend"`
	AnalysisCount int            `json:"analysisCount"`
	Latest        *HistoryRow    `json:"latest,omitempty"`
	Features      []string       `json:"features"`
	Steps         []string       `json:"steps"`
	AppTypes      []string       `json:"appTypes"`
}

func NewHome(u *identity.User, backend string, list []domain.Analysis) Home {
	h := Home{
		User:          u,
		Backend:       backend,
		AnalysisCount: len(list),
		Features:      []string{"Analyse intelligente", "Recommandations", "Rapports PDF"},
		Steps:         []string{"Décrivez votre projet", "Analyse automatique", "Obtenez vos résultats"},
		AppTypes:      domain.AppTypes,
	}
	if len(list) > 0 {
		row := History(list[0])
		h.Latest = &row
	}
	return h
}

type About struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Features     []string `json:"features"`
	Technologies []string `json:"technologies"`
}

func NewAbout(version string) About {
	return About{
		Name:    "THREAT AI",
		Version: version,
		Features: []string{
			"Analyse automatique des menaces basée sur l'IA",
			"Détection des vulnérabilités selon les standards de sécurité",
			"Génération de rapports détaillés en PDF",
			"Recommandations personnalisées pour chaque menace",
			"Scoring de risque global",
		},
		Technologies: []string{"OWASP Top 10", "MITRE ATT&CK", "CWE", "CVSS", "CIS Controls", "NIST CSF"},
	}
}
