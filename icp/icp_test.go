package icp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     int
	}{
		{"empty", Criteria{}, 0},
		{"certified only", Criteria{ISCCCertified: true}, 3},
		{"in progress counts like certified", Criteria{ISCCInProgress: true}, 3},
		{"certified and in progress do not stack", Criteria{ISCCCertified: true, ISCCInProgress: true}, 3},
		{"multi sites", Criteria{MultiSitesEU: true}, 2},
		{"chemical recycling segment", Criteria{CompanySegment: SegmentChemicalRecycling}, 2},
		{"tire recycling segment", Criteria{CompanySegment: SegmentTireRecycling}, 2},
		{"non priority segment", Criteria{CompanySegment: SegmentWasteManagement}, 0},
		{"single point criteria", Criteria{EPRPPWRExposure: true, EmployeesOver100: true, VisibleITBudget: true}, 3},
		{
			"everything caps at 10",
			Criteria{
				CompanySegment:   SegmentTireRecycling,
				ISCCCertified:    true,
				MultiSitesEU:     true,
				EPRPPWRExposure:  true,
				EmployeesOver100: true,
				VisibleITBudget:  true,
			},
			10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.criteria))
		})
	}
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, Tier1, TierForScore(10))
	assert.Equal(t, Tier1, TierForScore(8))
	assert.Equal(t, Tier2, TierForScore(7))
	assert.Equal(t, Tier2, TierForScore(5))
	assert.Equal(t, Tier3, TierForScore(4))
	assert.Equal(t, Tier3, TierForScore(3))
	assert.Equal(t, NonTarget, TierForScore(2))
	assert.Equal(t, NonTarget, TierForScore(0))
}

func TestEvaluateTier1Prospect(t *testing.T) {
	// ISCC in progress (+3), multi sites EU (+2), chemical recycling (+2),
	// 100+ employees (+1) = 8.
	score, tier, label := Evaluate(Criteria{
		CompanySegment:   SegmentChemicalRecycling,
		ISCCInProgress:   true,
		MultiSitesEU:     true,
		EmployeesOver100: true,
	})

	assert.Equal(t, 8, score)
	assert.Equal(t, Tier1, tier)
	assert.Equal(t, "🔥 Immediate outreach", label)
}

func TestPriorityLabel(t *testing.T) {
	assert.Equal(t, "🔥 Immediate outreach", PriorityLabel(9))
	assert.Equal(t, "⭐ Qualified nurture", PriorityLabel(6))
	assert.Equal(t, "📋 Low priority", PriorityLabel(2))
}

func TestSegmentTier(t *testing.T) {
	assert.Equal(t, Tier1, SegmentTier(SegmentFoodGradePack))
	assert.Equal(t, Tier2, SegmentTier(SegmentCompounder))
	assert.Equal(t, Tier3, SegmentTier(SegmentFMCGBrand))
	assert.Equal(t, NonTarget, SegmentTier(SegmentOther))
	assert.Equal(t, NonTarget, SegmentTier(Segment("garbage")))
}

func TestDetectSegment(t *testing.T) {
	seg, ok := DetectSegment("Pyrum Innovations", "tyre pyrolysis plant operator")
	assert.True(t, ok)
	assert.Equal(t, SegmentTireRecycling, seg)

	seg, ok = DetectSegment("Acme GmbH", "masterbatch production")
	assert.True(t, ok)
	assert.Equal(t, SegmentCompounder, seg)

	seg, ok = DetectSegment("Totally Unrelated Consulting")
	assert.False(t, ok)
	assert.Equal(t, SegmentOther, seg)
}
