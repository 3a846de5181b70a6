package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

func colorOf(b Badge) text.Colors {
	switch b.Color {
	case "red":
		return text.Colors{text.FgHiRed, text.Bold}
	case "orange":
		return text.Colors{text.FgRed}
	case "yellow":
		return text.Colors{text.FgYellow}
	case "green":
		return text.Colors{text.FgGreen}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func badge(b Badge) string {
	return colorOf(b).Sprint(b.Icon + " " + b.Label)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetAllowedRowLength(130)
	tw.SetStyle(table.StyleLight)
	return tw
}

// Banner prints an error line the way forms show them.
func Banner(w io.Writer, msg string) {
	fmt.Fprintln(w, text.Colors{text.FgHiRed, text.Bold}.Sprint("✖ "+msg))
}

func RenderResults(w io.Writer, r Results) {
	if r.Empty {
		fmt.Fprintln(w, "Aucune analyse disponible. Lancez votre première analyse avec `threatctl analyze`.")
		return
	}
	if !r.Found {
		Banner(w, "Analyse introuvable")
		RenderHistory(w, r.Others)
		return
	}

	tw := newTable(w)
	tw.SetTitle("Résultats de l'analyse: " + r.Project)
	tw.AppendRows([]table.Row{
		{"Score de risque", r.ScoreLabel},
		{"Menaces détectées", r.ThreatCount},
		{"Niveau de risque", r.RiskLabel},
		{"Niveau global", r.NiveauGlobal},
		{"Recommandations", r.Recommendations},
		{"Confiance IA moyenne", strconv.Itoa(r.ConfidencePercent) + "%"},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Menaces critiques", r.Counts.Critical},
		{"Menaces élevées", r.Counts.High},
		{"Menaces moyennes", r.Counts.Medium},
		{"Menaces faibles", r.Counts.Low},
	})
	tw.Render()

	if len(r.Threats) > 0 {
		tt := newTable(w)
		tt.SetTitle("Menaces")
		tt.AppendHeader(table.Row{"Gravité", "Menace", "Description"})
		for _, t := range r.Threats {
			tt.AppendRow(table.Row{badge(t.Severity), t.Name, text.WrapSoft(t.Description, 70)})
		}
		tt.Render()
	}

	if len(r.KeyThreats) == 0 {
		fmt.Fprintln(w, "Aucune menace critique détectée")
	} else {
		fmt.Fprintln(w, "Principales menaces détectées:")
		for _, k := range r.KeyThreats {
			fmt.Fprintf(w, "  %s %s\n", badge(k.Severity), k.Name)
			for _, rec := range k.Recommendations {
				fmt.Fprintf(w, "      - %s\n", rec)
			}
			if k.MoreRecommendations > 0 {
				fmt.Fprintf(w, "      + %d autres recommandations...\n", k.MoreRecommendations)
			}
		}
	}

	if len(r.Others) > 0 {
		fmt.Fprintln(w)
		RenderHistory(w, r.Others)
	}
}

func RenderHistory(w io.Writer, rows []HistoryRow) {
	if len(rows) == 0 {
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Projet", "Menaces", "Score", "Date"})
	for _, h := range rows {
		date := "-"
		if !h.CreatedAt.IsZero() {
			date = h.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		tw.AppendRow(table.Row{h.Project, h.ThreatCount, h.ScoreLabel, date})
	}
	tw.Render()
}

func RenderThreat(w io.Writer, d ThreatDetail) {
	tw := newTable(w)
	tw.SetTitle(d.Name)
	tw.AppendRow(table.Row{"Projet", d.Project})
	tw.AppendRow(table.Row{"Gravité", badge(d.Severity)})
	tw.AppendRow(table.Row{"Description", text.WrapSoft(d.Description, 80)})
	if d.CWE != nil {
		tw.AppendRow(table.Row{"CWE", d.CWE.Label + "  " + text.FgBlue.Sprint(d.CWE.URL)})
	}
	if d.CVSS != "" {
		v := d.CVSS
		if d.CVSSVector != "" {
			v += "  (" + d.CVSSVector + ")"
		}
		tw.AppendRow(table.Row{"CVSS", v})
	}
	if d.Mitre != nil {
		tw.AppendRow(table.Row{"MITRE ATT&CK", d.Mitre.Label + "  " + text.FgBlue.Sprint(d.Mitre.URL)})
	}
	if d.OWASP != "" {
		tw.AppendRow(table.Row{"OWASP", d.OWASP})
	}
	if d.ConfidencePercent != nil {
		tw.AppendRow(table.Row{"Confiance IA", strconv.Itoa(*d.ConfidencePercent) + "%"})
	}
	if len(d.CISControls) > 0 {
		tw.AppendRow(table.Row{"CIS Controls", joinControls(d.CISControls)})
	}
	if len(d.NISTCSF) > 0 {
		tw.AppendRow(table.Row{"NIST CSF", joinControls(d.NISTCSF)})
	}
	if len(d.CVEs) > 0 {
		ids := make([]string, 0, len(d.CVEs))
		for _, c := range d.CVEs {
			ids = append(ids, c.ID)
		}
		tw.AppendRow(table.Row{"CVE", strings.Join(ids, ", ")})
	}
	if len(d.Recommendations) > 0 {
		tw.AppendSeparator()
		for i, rec := range d.Recommendations {
			tw.AppendRow(table.Row{fmt.Sprintf("Recommandation %d", i+1), text.WrapSoft(rec, 80)})
		}
	}
	tw.Render()
}

func joinControls(cs []domain.ControlMapping) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.ID+" "+c.Name)
	}
	return strings.Join(parts, "\n")
}

func RenderMetrics(w io.Writer, m Metrics) {
	if !m.Available {
		fmt.Fprintln(w, "Aucune métrique disponible pour ce projet.")
		return
	}
	tw := newTable(w)
	tw.SetTitle("Métriques de validation: " + m.Project)
	tw.AppendRow(table.Row{"Confiance moyenne", strconv.Itoa(m.ConfidencePercent) + "%"})
	tw.AppendRow(table.Row{"", m.ConfidenceLabel})
	tw.AppendSeparator()
	for _, c := range m.Coverage {
		tw.AppendRow(table.Row{c.Label, strconv.FormatFloat(c.Percent, 'f', -1, 64) + "%"})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Total menaces", m.TotalThreats})
	tw.Render()
}

func RenderAttackPaths(w io.Writer, p AttackPaths) {
	if !p.Available {
		fmt.Fprintln(w, "Aucune menace à afficher pour ce projet.")
		return
	}
	tw := newTable(w)
	tw.SetTitle("Chemins d'attaque: " + p.Project)
	tw.AppendHeader(table.Row{"Gravité", "Menaces"})
	for _, g := range p.Groups {
		tw.AppendRow(table.Row{badge(g.Severity), g.Count})
	}
	tw.Render()

	for _, g := range p.Groups {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintln(w, badge(g.Severity))
		for _, t := range g.Threats {
			line := "  • " + t.Name
			if t.Mitre != nil {
				line += "  [" + t.Mitre.Label + "]"
			}
			if t.ConfidencePercent != nil {
				line += fmt.Sprintf("  %d%%", *t.ConfidencePercent)
			}
			fmt.Fprintln(w, line)
			for _, rec := range t.Recommendations {
				fmt.Fprintf(w, "      - %s\n", rec)
			}
			if len(t.CVEs) > 0 {
				fmt.Fprintf(w, "      CVE: %s\n", strings.Join(t.CVEs, ", "))
			}
		}
	}
}
