package request

import (
	"strconv"
	"strings"
)

// Keyword weights for task-type inference. Validation runs before any data is
// read, so inference works off the request wording alone; the Data Agent
// later confirms the choice against the actual target column.
var classificationTerms = map[string]float64{
	"classify":       1.0,
	"classification": 1.0,
	"categorize":     0.9,
	"spam":           0.9,
	"churn":          0.8,
	"fraud":          0.8,
	"label":          0.7,
	"detect":         0.6,
	"whether":        0.6,
	"category":       0.6,
}

var regressionTerms = map[string]float64{
	"regression": 1.0,
	"forecast":   0.9,
	"price":      0.8,
	"estimate":   0.7,
	"revenue":    0.7,
	"amount":     0.6,
	"sales":      0.6,
	"cost":       0.6,
	"temperature": 0.6,
	"demand":     0.6,
}

// InferTaskType guesses a task type from the request description and reports
// a confidence in [0, 1]. A description with no signal returns TaskUnknown
// with zero confidence.
func InferTaskType(desc string) (TaskType, float64) {
	lower := strings.ToLower(desc)

	clsScore := matchScore(lower, classificationTerms)
	regScore := matchScore(lower, regressionTerms)

	if clsScore == 0 && regScore == 0 {
		return TaskUnknown, 0
	}

	total := clsScore + regScore
	if clsScore > regScore {
		return TaskClassification, clsScore / total
	}
	if regScore > clsScore {
		return TaskRegression, regScore / total
	}
	// Equal non-zero signal: ambiguous.
	return TaskUnknown, 0.5
}

func matchScore(lower string, terms map[string]float64) float64 {
	var score float64
	for term, weight := range terms {
		if strings.Contains(lower, term) {
			score += weight
		}
	}
	return score
}

// findContradiction reports the first mutually contradictory pair of
// constraints, or "" if the request is internally consistent.
func findContradiction(constraints map[string]string, targets map[string]float64) string {
	// Conflicting optimization metrics declared under both spellings.
	if opt, ok := constraints["optimize"]; ok {
		if metric, ok := constraints["metric"]; ok && !strings.EqualFold(opt, metric) {
			return "conflicting optimization metrics: optimize=" + opt + " vs metric=" + metric
		}
	}

	// A latency ceiling that no ensemble of the requested size can meet:
	// each ensemble member costs at least ~1ms of inference.
	latency, hasLatency := targets["latency_ms"]
	if !hasLatency {
		if raw, ok := constraints["max_latency_ms"]; ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				latency, hasLatency = v, true
			}
		}
	}
	if hasLatency {
		if raw, ok := constraints["ensemble_size"]; ok {
			if n, err := strconv.ParseFloat(raw, 64); err == nil && n > 1 && latency < n {
				return "latency target " + formatMS(latency) +
					" is unattainable with an ensemble of " + raw + " models"
			}
		}
	}

	return ""
}

func formatMS(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "ms"
}
