package silence

// RecentWindow is how many prior silences the assessment compares against.
const RecentWindow = 5

// likelyNaturalBelow is the confidence under which a silence is hinted natural.
const likelyNaturalBelow = 0.6

// Classify returns the category for a silence of the given duration.
func Classify(durationMs, naturalMaxMs int64) Category {
	if durationMs <= naturalMaxMs {
		return CategoryNatural
	}
	return CategoryUnnatural
}

// Assess scores how likely a silence is to be unnatural. recent holds prior
// silences, oldest first; only the last RecentWindow are considered.
func Assess(durationMs int64, avgDB float64, recent []Silence, cfg Config) Assessment {
	features := Features{
		DurationMs:   durationMs,
		AvgDB:        avgDB,
		ThresholdDB:  cfg.ThresholdDB,
		NaturalMaxMs: cfg.NaturalMaxMs,
	}

	confidence := 0.5
	if durationMs > 2*cfg.NaturalMaxMs {
		confidence += 0.3
	}
	if durationMs < cfg.NaturalMaxMs {
		confidence -= 0.2
	}
	if avgDB < cfg.ThresholdDB-10 {
		confidence += 0.1
	}

	if len(recent) > RecentWindow {
		recent = recent[len(recent)-RecentWindow:]
	}
	if len(recent) > 0 {
		var sum int64
		for _, s := range recent {
			sum += s.DurationMs
		}
		mean := float64(sum) / float64(len(recent))
		features.RecentMeanMs = mean
		features.RecentCount = len(recent)
		if float64(durationMs) > 2*mean {
			confidence += 0.15
		}
	}

	confidence = min(max(confidence, 0), 1)

	return Assessment{
		Confidence:    confidence,
		Reason:        reasonFor(confidence),
		LikelyNatural: confidence < likelyNaturalBelow,
		Features:      features,
	}
}

func reasonFor(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "very likely unnatural silence (excessive duration or unusual pattern)"
	case confidence >= 0.6:
		return "possibly unnatural silence (abnormal duration)"
	case confidence >= 0.4:
		return "probably natural silence (standard pause)"
	default:
		return "natural silence (normal conversational pause)"
	}
}
