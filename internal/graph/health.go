package graph

import (
	"math"
	"strings"
)

// HealthBreakdown shows the sub-scores of the health formula
type HealthBreakdown struct {
	Connectivity float64 `json:"connectivity"`
	Components   float64 `json:"components"`
	Staleness    float64 `json:"staleness"`
	Integrity    float64 `json:"integrity"`
}

// AnalysisReport is the full analysis result
type AnalysisReport struct {
	HealthScore     float64          `json:"health_score"`
	HealthBreakdown HealthBreakdown  `json:"health_breakdown"`
	Stats           *TreeStats       `json:"stats"`
	Staleness       *StalenessReport `json:"staleness"`
	Violations      []string         `json:"violations,omitempty"`
}

// AnalyzerConfig holds analysis parameters
type AnalyzerConfig struct {
	StaleDays int64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *AnalyzerConfig {
	return &AnalyzerConfig{StaleDays: 30}
}

// Analyze runs all analyses over a node list and computes a composite
// health score. now is unix millis.
func Analyze(nodes []Node, config *AnalyzerConfig, now int64) *AnalysisReport {
	if config == nil {
		config = DefaultConfig()
	}
	stats := ComputeStats(nodes)
	staleness := ComputeStaleness(nodes, config.StaleDays, now)

	var violations []string
	if err := CheckInvariants(nodes); err != nil {
		violations = strings.Split(err.Error(), "\n")
	}

	total := float64(stats.TotalNodes)
	var connectivity, components, stalenessScore, integrity float64

	if total > 0 {
		floating := total - float64(stats.RootTreeSize)
		connectivity = clamp(1.0-math.Min(floating/total, 0.2)*5.0, 0, 1)
		stalenessScore = clamp(1.0-math.Min(float64(staleness.StaleNodeCount)/total, 0.1)*10.0, 0, 1)
		integrity = clamp(1.0-math.Min(float64(len(violations))/total, 0.05)*20.0, 0, 1)
	}
	if stats.Components > 0 {
		components = clamp(1.0/float64(stats.Components), 0, 1)
	}

	healthScore := 0.30*connectivity + 0.25*components + 0.25*stalenessScore + 0.20*integrity

	return &AnalysisReport{
		HealthScore: healthScore,
		HealthBreakdown: HealthBreakdown{
			Connectivity: connectivity,
			Components:   components,
			Staleness:    stalenessScore,
			Integrity:    integrity,
		},
		Stats:      stats,
		Staleness:  staleness,
		Violations: violations,
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
