package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Text decodes from a JSON string or number; the backend is not consistent
// about scores.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

// Reference points to a catalogue entry (CWE, OWASP).
type Reference struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// MitreTechnique describes an ATT&CK technique.
type MitreTechnique struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Tactic      string `json:"tactic,omitempty"`
	URL         string `json:"url,omitempty"`
}

// CVE is a vulnerability the backend linked to a threat.
type CVE struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	CVSSScore   *float64 `json:"cvss_score,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// ControlMapping maps a threat onto a framework control (CIS, NIST CSF).
type ControlMapping struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Relevance string `json:"relevance,omitempty"`
}

// Threat is one detected menace.
type Threat struct {
	Nom             string   `json:"nom"`
	Gravite         Severity `json:"gravite"`
	Description     string   `json:"description"`
	Recommandations []string `json:"recommandations,omitempty"`

	CWEID          string   `json:"cwe_id,omitempty"`
	CVSSScore      Text     `json:"cvss_score,omitempty"`
	CVSSVector     string   `json:"cvss_vector,omitempty"`
	MitreAttackID  string   `json:"mitre_attack_id,omitempty"`
	OwaspCategory  string   `json:"owasp_category,omitempty"`
	ScoreConfiance *float64 `json:"score_confiance,omitempty"`

	CWEInfo     *Reference       `json:"cwe_info,omitempty"`
	MitreInfo   *MitreTechnique  `json:"mitre_info,omitempty"`
	CVEs        []CVE            `json:"cves,omitempty"`
	OwaspInfo   *Reference       `json:"owasp_info,omitempty"`
	CISControls []ControlMapping `json:"cis_controls,omitempty"`
	NISTCSF     []ControlMapping `json:"nist_csf,omitempty"`
}

// Report is the raw model answer.
type Report struct {
	NiveauGlobal string   `json:"niveau_global,omitempty"`
	Menaces      []Threat `json:"menaces"`
}

// Summary is the dashboard header block.
type Summary struct {
	Projet       string   `json:"projet,omitempty"`
	NiveauGlobal string   `json:"niveau_global,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	NiveauRisque string   `json:"niveau_risque,omitempty"`
	Couleur      string   `json:"couleur,omitempty"`
}

// Statistics aggregates threats per severity.
type Statistics struct {
	TotalMenaces int            `json:"total_menaces"`
	ParGravite   SeverityCounts `json:"par_gravite"`
}

// Slice is one entry of the severity distribution chart.
type Slice struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// KeyThreat is a top threat shown on the dashboard.
type KeyThreat struct {
	Nom         string   `json:"nom"`
	Gravite     Severity `json:"gravite"`
	Description string   `json:"description"`
}

// Coverage is the share of threats mapped to each standard, in percent.
type Coverage struct {
	TotalMenaces  int     `json:"total_menaces"`
	OwaspCoverage float64 `json:"owasp_coverage"`
	MitreCoverage float64 `json:"mitre_coverage"`
	CWECoverage   float64 `json:"cwe_coverage"`
	CVSSCoverage  float64 `json:"cvss_coverage"`
}

// Metrics are the validation metrics attached to recent analyses.
type Metrics struct {
	ScoreConfianceMoyen float64  `json:"score_confiance_moyen"`
	Couverture          Coverage `json:"couverture"`
}

// Dashboard aggregates statistics and top threats.
type Dashboard struct {
	Resume             *Summary    `json:"resume,omitempty"`
	Statistiques       *Statistics `json:"statistiques,omitempty"`
	RepartitionGravite []Slice     `json:"repartition_gravite,omitempty"`
	MenacesCles        []KeyThreat `json:"menaces_cles,omitempty"`
	Metriques          *Metrics    `json:"metriques,omitempty"`
}

// Analysis is the backend threat report for one project, cached locally.
type Analysis struct {
	Project     string    `json:"project"`
	ScoreRisque float64   `json:"score_risque"`
	Dashboard   Dashboard `json:"dashboard"`
	Analysis    Report    `json:"analysis"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// ThreatByName returns the first threat named name.
func (a Analysis) ThreatByName(name string) (Threat, bool) {
	for _, t := range a.Analysis.Menaces {
		if t.Nom == name {
			return t, true
		}
	}
	return Threat{}, false
}

// NiveauGlobal resolves the global level: dashboard summary, then the raw
// report, then FAIBLE.
func (a Analysis) NiveauGlobal() string {
	if a.Dashboard.Resume != nil && a.Dashboard.Resume.NiveauGlobal != "" {
		return a.Dashboard.Resume.NiveauGlobal
	}
	if a.Analysis.NiveauGlobal != "" {
		return a.Analysis.NiveauGlobal
	}
	return "FAIBLE"
}

// HasValue treats empty strings and the backend placeholder N/A as absent.
func HasValue(s string) bool {
	return s != "" && s != "N/A"
}

// CVSS returns the numeric cvss score if one is set.
func (t Threat) CVSS() (float64, bool) {
	if !HasValue(string(t.CVSSScore)) {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(t.CVSSScore), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
