package screening

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/screening-orchestrator/internal/types"
)

func criteriaFromBools(passed []bool) []types.CriteriaResult {
	criteria := make([]types.CriteriaResult, len(passed))
	for i, p := range passed {
		criteria[i] = types.CriteriaResult{Criteria: "criterion", Passed: p}
	}
	return criteria
}

func TestScoreCriteriaProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("score is always within [0, 100]", prop.ForAll(
		func(passed []bool) bool {
			score := scoreCriteria(criteriaFromBools(passed))
			return score >= 0 && score <= 100
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("flipping a failed criterion to passed never lowers the score", prop.ForAll(
		func(passed []bool) bool {
			for i, p := range passed {
				if p {
					continue
				}
				flipped := make([]bool, len(passed))
				copy(flipped, passed)
				flipped[i] = true

				before := scoreCriteria(criteriaFromBools(passed))
				after := scoreCriteria(criteriaFromBools(flipped))
				if after < before {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("all passed scores 100, all failed scores 0", prop.ForAll(
		func(n int, allPassed bool) bool {
			passed := make([]bool, n)
			for i := range passed {
				passed[i] = allPassed
			}
			score := scoreCriteria(criteriaFromBools(passed))
			if n == 0 {
				return score == 0
			}
			if allPassed {
				return score == 100
			}
			return score == 0
		},
		gen.IntRange(0, 50),
		gen.Bool(),
	))

	properties.Property("failure reasons count matches failed criteria", prop.ForAll(
		func(passed []bool) bool {
			failed := 0
			for _, p := range passed {
				if !p {
					failed++
				}
			}
			return len(failureReasons(criteriaFromBools(passed))) == failed
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
