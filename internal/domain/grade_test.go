package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniformScores(v float64) FactorScoreSet {
	return FactorScoreSet{
		Offense: v, Matchup: v, Situational: v,
		Momentum: v, MarketEdge: v, Confidence: v,
	}
}

func TestWeightedSum_WeightsTotalOne(t *testing.T) {
	total := WeightOffense + WeightMatchup + WeightSituational +
		WeightMomentum + WeightMarketEdge + WeightConfidence
	assert.InDelta(t, 1.0, total, 1e-9)

	// Uniform scores must pass through unchanged.
	assert.InDelta(t, 70.0, uniformScores(70).WeightedSum(), 1e-9)
}

func TestWeightedSum_MarketEdgeDominates(t *testing.T) {
	base := uniformScores(50)

	edgy := base
	edgy.MarketEdge = 90
	offy := base
	offy.Offense = 90

	assert.Greater(t, edgy.WeightedSum(), offy.WeightedSum())
}

func TestComputeGrade_Thresholds(t *testing.T) {
	cases := []struct {
		sum  float64
		want Grade
	}{
		{95, "A+"}, {88, "A+"}, {87.9, "A"},
		{82, "A"}, {77, "A-"}, {72, "B+"},
		{71.9, "B"}, {67, "B"}, {62, "B-"},
		{57, "C+"}, {52, "C"}, {47, "C-"},
		{42, "D+"}, {36, "D"}, {35.9, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		grade, sum := ComputeGrade(uniformScores(tc.sum))
		assert.Equal(t, tc.want, grade, "sum %.1f", tc.sum)
		assert.InDelta(t, tc.sum, sum, 1e-9)
	}
}

func TestComputeGrade_FloatAccumulationAtBoundary(t *testing.T) {
	// Six weighted terms summing to exactly 82.0 accumulate to just under it
	// in float64; the threshold comparison must not demote the grade.
	scores := uniformScores(82)
	assert.Less(t, scores.WeightedSum(), 82.0)
	grade, _ := ComputeGrade(scores)
	assert.Equal(t, Grade("A"), grade)
}

func TestComputeGrade_Monotonic(t *testing.T) {
	prev := Grade("F")
	for sum := 0.0; sum <= 100; sum += 0.5 {
		grade, _ := ComputeGrade(uniformScores(sum))
		assert.True(t, grade.AtLeast(prev), "grade regressed at sum %.1f", sum)
		prev = grade
	}
}

func TestGradeRank_Ordering(t *testing.T) {
	ladder := []Grade{"F", "D", "D+", "C-", "C", "C+", "B-", "B", "B+", "A-", "A", "A+"}
	for i := 1; i < len(ladder); i++ {
		assert.Greater(t, ladder[i].Rank(), ladder[i-1].Rank())
	}
}

func TestGradeAtLeast(t *testing.T) {
	assert.True(t, Grade("B+").AtLeast("B+"))
	assert.True(t, Grade("A-").AtLeast("B+"))
	assert.False(t, Grade("B").AtLeast("B+"))

	// Unknown grades rank as F.
	assert.False(t, Grade("Z").AtLeast("D"))
	assert.True(t, Grade("F").AtLeast("Z"))
}

func TestValidGrade(t *testing.T) {
	assert.True(t, ValidGrade("A+"))
	assert.True(t, ValidGrade("F"))
	assert.False(t, ValidGrade("E"))
	assert.False(t, ValidGrade("b+"))
	assert.False(t, ValidGrade(""))
}
