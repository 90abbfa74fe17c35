package pattern

import "strings"

// ValidationResult is the precision/recall/F1 summary of a pattern-set
// against a ground-truth pattern set (spec.md §4.6's validation harness).
// True negatives are not counted (spec.md convention: TN=0, since the
// universe of "all possible non-patterns" is unbounded).
type ValidationResult struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64
}

// ValidateSequences compares mined tool-sequence patterns against a ground
// truth set of tool sequences using Jaccard similarity, matching a
// candidate to a ground-truth sequence when similarity reaches or exceeds
// threshold.
func ValidateSequences(mined [][]string, groundTruth [][]string, threshold float64) ValidationResult {
	matchedTruth := make([]bool, len(groundTruth))
	tp := 0
	for _, candidate := range mined {
		matched := false
		for i, truth := range groundTruth {
			if matchedTruth[i] {
				continue
			}
			if sequenceJaccard(candidate, truth) >= threshold {
				matchedTruth[i] = true
				matched = true
				break
			}
		}
		if matched {
			tp++
		}
	}
	fp := len(mined) - tp
	fn := 0
	for _, m := range matchedTruth {
		if !m {
			fn++
		}
	}
	return buildResult(tp, fp, fn)
}

// ValidateStrings compares mined string-valued patterns (e.g. conditions,
// error types) against ground truth using word-overlap similarity.
func ValidateStrings(mined []string, groundTruth []string, threshold float64) ValidationResult {
	matchedTruth := make([]bool, len(groundTruth))
	tp := 0
	for _, candidate := range mined {
		matched := false
		for i, truth := range groundTruth {
			if matchedTruth[i] {
				continue
			}
			if wordOverlapSimilarity(candidate, truth) >= threshold {
				matchedTruth[i] = true
				matched = true
				break
			}
		}
		if matched {
			tp++
		}
	}
	fp := len(mined) - tp
	fn := 0
	for _, m := range matchedTruth {
		if !m {
			fn++
		}
	}
	return buildResult(tp, fp, fn)
}

func buildResult(tp, fp, fn int) ValidationResult {
	r := ValidationResult{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
	if tp+fp > 0 {
		r.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		r.Recall = float64(tp) / float64(tp+fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

func sequenceJaccard(a, b []string) float64 {
	return jaccardSimilarity(a, b)
}

func wordOverlapSimilarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	return jaccardSimilarity(wordsA, wordsB)
}
