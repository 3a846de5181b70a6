package view

import (
	"strings"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type ThreatDetail struct {
	Project           string   `json:"project"`
	Name              string   `json:"name"`
	Severity          Badge    `json:"severity"`
	Description       string   `json:"description"`
	Recommendations   []string `json:"recommendations"`
	CWE               *Link    `json:"cwe,omitempty"`
	CVSS              string   `json:"cvss,omitempty"`
	CVSSVector        string   `json:"cvssVector,omitempty"`
	Mitre             *Link    `json:"mitre,omitempty"`
	OWASP             string   `json:"owasp,omitempty"`
	ConfidencePercent *int     `json:"confidencePercent,omitempty"`

	OWASPInfo   *domain.Reference       `json:"owaspInfo,omitempty"`
	CISControls []domain.ControlMapping `json:"cisControls,omitempty"`
	NISTCSF     []domain.ControlMapping `json:"nistCsf,omitempty"`
	CVEs        []domain.CVE            `json:"cves,omitempty"`
	PDFPath     string                  `json:"pdfPath"`
}

// NewThreatDetail finds threat name inside a.
func NewThreatDetail(a domain.Analysis, name string) (ThreatDetail, bool) {
	t, ok := a.ThreatByName(name)
	if !ok {
		return ThreatDetail{}, false
	}

	d := ThreatDetail{
		Project:         a.Project,
		Name:            t.Nom,
		Severity:        BadgeFor(t.Gravite),
		Description:     t.Description,
		Recommendations: t.Recommandations,
		CWE:             CWELink(t),
		Mitre:           MitreLink(t),
		OWASPInfo:       t.OwaspInfo,
		CISControls:     t.CISControls,
		NISTCSF:         t.NISTCSF,
		CVEs:            t.CVEs,
		CVSSVector:      t.CVSSVector,
		PDFPath:         ReportPath(a.Project) + "/pdf",
	}
	if d.Recommendations == nil {
		d.Recommendations = []string{}
	}
	if domain.HasValue(string(t.CVSSScore)) {
		d.CVSS = string(t.CVSSScore)
	}
	if domain.HasValue(t.OwaspCategory) {
		d.OWASP = t.OwaspCategory
	}
	if t.ScoreConfiance != nil {
		p := Percent(*t.ScoreConfiance)
		d.ConfidencePercent = &p
	}
	return d, true
}

// CWELink prefers the backend url, else the MITRE CWE definition page.
func CWELink(t domain.Threat) *Link {
	if !domain.HasValue(t.CWEID) {
		return nil
	}
	if t.CWEInfo != nil && t.CWEInfo.URL != "" {
		return &Link{Label: t.CWEID, URL: t.CWEInfo.URL}
	}
	n := strings.Replace(t.CWEID, "CWE-", "", 1)
	return &Link{Label: t.CWEID, URL: "https://cwe.mitre.org/data/definitions/" + n + ".html"}
}

// MitreLink prefers the backend url, else the ATT&CK technique page.
func MitreLink(t domain.Threat) *Link {
	if !domain.HasValue(t.MitreAttackID) {
		return nil
	}
	if t.MitreInfo != nil && t.MitreInfo.URL != "" {
		return &Link{Label: t.MitreAttackID, URL: t.MitreInfo.URL}
	}
	id := strings.Replace(t.MitreAttackID, "T", "", 1)
	return &Link{Label: t.MitreAttackID, URL: "https://attack.mitre.org/techniques/" + id}
}
