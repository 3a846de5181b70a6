package analysis

import "strings"

// Severity is the gravity label produced by the backend.
type Severity string

const (
	SeverityCritical Severity = "Critique"
	SeverityHigh     Severity = "Élevée"
	SeverityMedium   Severity = "Moyenne"
	SeverityLow      Severity = "Faible"
)

var severityOrder = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Severities returns the known severities from most to least severe.
func Severities() []Severity {
	out := make([]Severity, len(severityOrder))
	copy(out, severityOrder)
	return out
}

var accentFolder = strings.NewReplacer("é", "e", "è", "e", "ê", "e", "É", "e", "È", "e")

// ParseSeverity maps a label to a known severity. It tolerates case, missing
// accents and the english names the model sometimes answers with.
func ParseSeverity(label string) (Severity, bool) {
	s := strings.ToLower(accentFolder.Replace(strings.TrimSpace(label)))
	switch s {
	case "critique", "critical":
		return SeverityCritical, true
	case "elevee", "eleve", "high":
		return SeverityHigh, true
	case "moyenne", "moyen", "medium":
		return SeverityMedium, true
	case "faible", "low", "info", "informational":
		return SeverityLow, true
	}
	return Severity(strings.TrimSpace(label)), false
}

// Known reports whether s is one of the four severities.
func (s Severity) Known() bool {
	return s.Rank() < len(severityOrder)
}

// Rank is 0 for Critique up to 3 for Faible; unknown labels sort last.
func (s Severity) Rank() int {
	for i, v := range severityOrder {
		if v == s {
			return i
		}
	}
	return len(severityOrder)
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"Critique"`
	High     int `json:"Élevée"`
	Medium   int `json:"Moyenne"`
	Low      int `json:"Faible"`
}

// Add counts one threat of severity s; unknown labels are ignored.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// Of returns the count for s.
func (c SeverityCounts) Of(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	}
	return 0
}

func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// CountBySeverity tallies threats per severity.
func CountBySeverity(threats []Threat) SeverityCounts {
	var c SeverityCounts
	for _, t := range threats {
		c.Add(t.Gravite)
	}
	return c
}

// SeverityGroup is the set of threats sharing one severity.
type SeverityGroup struct {
	Severity Severity `json:"gravite"`
	Threats  []Threat `json:"menaces"`
}

// GroupBySeverity buckets threats in severity order, keeping input order
// inside a bucket. Every known severity gets a group, possibly empty; threats
// with an unknown label are left out.
func GroupBySeverity(threats []Threat) []SeverityGroup {
	groups := make([]SeverityGroup, len(severityOrder))
	for i, s := range severityOrder {
		groups[i] = SeverityGroup{Severity: s, Threats: []Threat{}}
	}
	for _, t := range threats {
		if r := t.Gravite.Rank(); r < len(groups) {
			groups[r].Threats = append(groups[r].Threats, t)
		}
	}
	return groups
}
