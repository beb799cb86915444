// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
)

// GroupStats is the mean metric profile of one group of conversations.
// MeanConstraintHalfLife is nil when no conversation in the group had a
// violated constraint.
type GroupStats struct {
	N                      int      `json:"n"`
	MeanDriftVelocity      float64  `json:"mean_drift_velocity"`
	MeanAgencyTax          float64  `json:"mean_agency_tax"`
	MeanConstraintHalfLife *float64 `json:"mean_constraint_half_life"`
	MeanSurvivalRate       float64  `json:"mean_survival_rate"`
	MeanModeViolationRate  float64  `json:"mean_mode_violation_rate"`
	MeanRepairSuccessRate  float64  `json:"mean_repair_success_rate"`
	MeanConstraintLifespan float64  `json:"mean_constraint_lifespan"`
	MeanModeEntropy        float64  `json:"mean_mode_entropy"`
	MeanMoveCoverage       float64  `json:"mean_move_coverage"`
	TotalViolations        int      `json:"total_violations"`
	TotalRepairs           int      `json:"total_repairs"`
	TotalConstraints       int      `json:"total_constraints"`
}

// Aggregation is the cross-conversation rollup: overall means plus
// breakdowns by stability class, task architecture and constraint
// hardness.
type Aggregation struct {
	Total            int                   `json:"total"`
	Overall          GroupStats            `json:"overall"`
	ByStabilityClass map[string]GroupStats `json:"by_stability_class"`
	ByArchitecture   map[string]GroupStats `json:"by_architecture"`
	ByHardness       map[string]GroupStats `json:"by_hardness"`
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return round4(sum / float64(len(values)))
}

func groupStats(group []core.ConversationMetrics) GroupStats {
	s := GroupStats{N: len(group)}
	if s.N == 0 {
		return s
	}

	var drift, tax, survival, modeViol, repair, lifespan, entropy, coverage, halfLives []float64
	for _, m := range group {
		drift = append(drift, m.DriftVelocity)
		tax = append(tax, m.AgencyTax)
		survival = append(survival, m.ConstraintSurvivalRate)
		modeViol = append(modeViol, m.ModeViolationRate)
		repair = append(repair, m.RepairSuccessRate)
		lifespan = append(lifespan, m.MeanConstraintLifespan)
		entropy = append(entropy, m.ModeEntropy)
		coverage = append(coverage, m.MoveCoverage)
		if m.ConstraintHalfLife != nil {
			halfLives = append(halfLives, *m.ConstraintHalfLife)
		}
		s.TotalViolations += m.TotalViolations
		s.TotalRepairs += m.TotalRepairs
		s.TotalConstraints += m.TotalConstraints
	}

	s.MeanDriftVelocity = mean(drift)
	s.MeanAgencyTax = mean(tax)
	s.MeanSurvivalRate = mean(survival)
	s.MeanModeViolationRate = mean(modeViol)
	s.MeanRepairSuccessRate = mean(repair)
	s.MeanConstraintLifespan = mean(lifespan)
	s.MeanModeEntropy = mean(entropy)
	s.MeanMoveCoverage = mean(coverage)
	if len(halfLives) > 0 {
		hl := mean(halfLives)
		s.MeanConstraintHalfLife = &hl
	}
	return s
}

// Aggregate rolls a set of per-conversation metrics up into overall means
// and per-label breakdowns. Conversations without a label land in the
// "Unknown" group.
func Aggregate(all []core.ConversationMetrics) Aggregation {
	agg := Aggregation{
		Total:            len(all),
		Overall:          groupStats(all),
		ByStabilityClass: make(map[string]GroupStats),
		ByArchitecture:   make(map[string]GroupStats),
		ByHardness:       make(map[string]GroupStats),
	}

	byStability := make(map[string][]core.ConversationMetrics)
	byArch := make(map[string][]core.ConversationMetrics)
	byHardness := make(map[string][]core.ConversationMetrics)
	for _, m := range all {
		byStability[orUnknown(m.StabilityClass)] = append(byStability[orUnknown(m.StabilityClass)], m)
		byArch[orUnknown(m.TaskArchitecture)] = append(byArch[orUnknown(m.TaskArchitecture)], m)
		byHardness[orUnknown(m.ConstraintHardness)] = append(byHardness[orUnknown(m.ConstraintHardness)], m)
	}
	for k, v := range byStability {
		agg.ByStabilityClass[k] = groupStats(v)
	}
	for k, v := range byArch {
		agg.ByArchitecture[k] = groupStats(v)
	}
	for k, v := range byHardness {
		agg.ByHardness[k] = groupStats(v)
	}
	return agg
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// Report renders the aggregation as a markdown document with an overall
// table and one breakdown table per grouping.
func Report(all []core.ConversationMetrics) string {
	agg := Aggregate(all)
	overall := agg.Overall

	var b strings.Builder
	b.WriteString("# Atlas Graph Metrics Report\n\n")
	fmt.Fprintf(&b, "**Conversations Analyzed:** %d\n", agg.Total)
	fmt.Fprintf(&b, "**Total Constraints Tracked:** %d\n", overall.TotalConstraints)
	fmt.Fprintf(&b, "**Total Violations Detected:** %d\n", overall.TotalViolations)
	fmt.Fprintf(&b, "**Total Repairs Attempted:** %d\n", overall.TotalRepairs)
	b.WriteString("\n## Overall Metrics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Drift Velocity (violations/turn) | %s |\n", formatFloat(overall.MeanDriftVelocity))
	fmt.Fprintf(&b, "| Agency Tax (repairs/violation) | %s |\n", formatFloat(overall.MeanAgencyTax))
	fmt.Fprintf(&b, "| Constraint Half-Life (turns) | %s |\n", formatOptional(overall.MeanConstraintHalfLife))
	fmt.Fprintf(&b, "| Constraint Survival Rate | %s |\n", formatFloat(overall.MeanSurvivalRate))
	fmt.Fprintf(&b, "| Mode Violation Rate | %s |\n", formatFloat(overall.MeanModeViolationRate))
	fmt.Fprintf(&b, "| Repair Success Rate | %s |\n", formatFloat(overall.MeanRepairSuccessRate))
	fmt.Fprintf(&b, "| Mean Constraint Lifespan (turns) | %s |\n", formatFloat(overall.MeanConstraintLifespan))
	fmt.Fprintf(&b, "| Mode Entropy | %s |\n", formatFloat(overall.MeanModeEntropy))
	fmt.Fprintf(&b, "| Move Coverage | %s |\n", formatFloat(overall.MeanMoveCoverage))
	b.WriteString("\n")

	writeBreakdown(&b, "By Task Stability Class", "Stability Class", agg.ByStabilityClass)
	writeBreakdown(&b, "By Task Architecture", "Architecture", agg.ByArchitecture)
	writeBreakdown(&b, "By Constraint Hardness", "Hardness", agg.ByHardness)
	return b.String()
}

func writeBreakdown(b *strings.Builder, title, label string, groups map[string]GroupStats) {
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| %s | N | Drift Vel. | Agency Tax | Half-Life | Survival | Mode Viol. |\n", label)
	b.WriteString("|----------------|---|-----------|-----------|----------|----------|-----------|\n")

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := groups[name]
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s |\n",
			name, s.N,
			formatFloat(s.MeanDriftVelocity),
			formatFloat(s.MeanAgencyTax),
			formatOptional(s.MeanConstraintHalfLife),
			formatFloat(s.MeanSurvivalRate),
			formatFloat(s.MeanModeViolationRate))
	}
	b.WriteString("\n")
}

func formatFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func formatOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return formatFloat(*v)
}
