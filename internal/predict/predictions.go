package predict

import (
	"fmt"
	"sort"
)

// Prediction is one independent finding detector's output.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Tier buckets the top score for display purposes.
type Tier string

const (
	TierNone     Tier = "none"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

// PredictionSet is an immutable, probability-ordered set of findings from one
// inference call. Probabilities are independent per label and do not sum to 1.
type PredictionSet struct {
	entries  []Prediction
	topLabel string
	topScore float64
}

// NewPredictionSet validates and orders raw model output. Labels and scores
// are paired by index; scores must lie in [0, 1].
func NewPredictionSet(labels []string, scores []float64) (*PredictionSet, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("prediction set is empty")
	}
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("labels/scores length mismatch: %d vs %d", len(labels), len(scores))
	}

	entries := make([]Prediction, len(labels))
	for i, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("empty label at index %d", i)
		}
		if scores[i] < 0 || scores[i] > 1 {
			return nil, fmt.Errorf("score %f for %q outside [0,1]", scores[i], label)
		}
		entries[i] = Prediction{Label: label, Probability: scores[i]}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Probability > entries[j].Probability
	})

	return &PredictionSet{
		entries:  entries,
		topLabel: entries[0].Label,
		topScore: entries[0].Probability,
	}, nil
}

// Entries returns the findings in descending probability order.
func (p *PredictionSet) Entries() []Prediction {
	out := make([]Prediction, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *PredictionSet) TopLabel() string { return p.topLabel }

func (p *PredictionSet) TopScore() float64 { return p.topScore }

// HasPositiveFinding reports whether the top score exceeds the configured
// positive threshold.
func (p *PredictionSet) HasPositiveFinding(threshold float64) bool {
	return p.topScore > threshold
}

// ConfidenceTier maps the top score against the positive and high-risk
// thresholds.
func (p *PredictionSet) ConfidenceTier(positive, highRisk float64) Tier {
	switch {
	case p.topScore <= positive:
		return TierNone
	case p.topScore <= highRisk:
		return TierModerate
	default:
		return TierHigh
	}
}
