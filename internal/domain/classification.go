package domain

// ClassificationResult is the structured assessment of a request. It is
// derived, recomputed whenever the description or photos change before a
// provider accepts.
type ClassificationResult struct {
	Severity         Severity   `json:"severity"`
	UrgencyScore     int        `json:"urgency_score"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	EstimatedCost    int64      `json:"estimated_cost"`
	RecommendedTools []string   `json:"recommended_tools"`
	RiskFactors      []string   `json:"risk_factors"`
	RequiredSkills   []string   `json:"required_skills"`
	Notes            []string   `json:"notes,omitempty"`
	Confidence       float64    `json:"confidence"`
	Complexity       Complexity `json:"complexity"`
}

// HasRisk returns true if risk is listed.
func (c ClassificationResult) HasRisk(risk string) bool {
	for _, r := range c.RiskFactors {
		if r == risk {
			return true
		}
	}
	return false
}
