package icp

import "strings"

// Tier buckets contacts by ICP score.
type Tier string

const (
	Tier1     Tier = "tier_1"     // score 8-10
	Tier2     Tier = "tier_2"     // score 5-7
	Tier3     Tier = "tier_3"     // score 3-4
	NonTarget Tier = "non_target" // score 0-2
)

// Segment classifies the contact's company for scoring purposes.
type Segment string

const (
	// Tier 1 segments
	SegmentChemicalRecycling Segment = "chemical_recycling"
	SegmentTireRecycling     Segment = "tire_recycling"
	SegmentFoodGradePack     Segment = "food_grade_packaging"

	// Tier 2 segments
	SegmentEcoOrganisme  Segment = "eco_organisme"
	SegmentFlexiblePack  Segment = "flexible_packaging"
	SegmentCompounder    Segment = "plastic_compounder"

	// Tier 3 segments
	SegmentWasteManagement Segment = "waste_management"
	SegmentFMCGBrand       Segment = "fmcg_brand"
	SegmentEquipment       Segment = "equipment_provider"

	SegmentOther Segment = "other"
)

// Criteria is the single declared schema of scoring inputs. It is embedded
// into models.Contact, so the database columns and the scoring function can
// never drift apart.
type Criteria struct {
	CompanySegment   Segment `gorm:"default:'other'" json:"company_segment"`
	ISCCCertified    bool    `gorm:"default:false" json:"iscc_certified"`
	ISCCInProgress   bool    `gorm:"default:false" json:"iscc_in_progress"`
	MultiSitesEU     bool    `gorm:"default:false" json:"multi_sites_eu"`
	EPRPPWRExposure  bool    `gorm:"default:false" json:"epr_ppwr_exposure"`
	EmployeesOver100 bool    `gorm:"default:false" json:"employees_over_100"`
	VisibleITBudget  bool    `gorm:"default:false" json:"visible_it_budget"`
}

// Score computes the ICP score on a 0-10 scale.
//
// Weights:
//   - ISCC+ certified or in progress: +3
//   - Multi-site presence in the EU:  +2
//   - Chemical/tire recycling segment: +2
//   - Direct EPR/PPWR exposure: +1
//   - 100 or more employees: +1
//   - Visible IT budget: +1
func Score(c Criteria) int {
	score := 0

	if c.ISCCCertified || c.ISCCInProgress {
		score += 3
	}
	if c.MultiSitesEU {
		score += 2
	}
	if c.CompanySegment == SegmentChemicalRecycling || c.CompanySegment == SegmentTireRecycling {
		score += 2
	}
	if c.EPRPPWRExposure {
		score += 1
	}
	if c.EmployeesOver100 {
		score += 1
	}
	if c.VisibleITBudget {
		score += 1
	}

	if score > 10 {
		return 10
	}
	return score
}

// TierForScore maps a score to its priority tier. Thresholds are half-open
// intervals checked high to low, first match wins.
func TierForScore(score int) Tier {
	switch {
	case score >= 8:
		return Tier1
	case score >= 5:
		return Tier2
	case score >= 3:
		return Tier3
	default:
		return NonTarget
	}
}

// PriorityLabel returns the display label for a score.
func PriorityLabel(score int) string {
	switch {
	case score >= 8:
		return "🔥 Immediate outreach"
	case score >= 5:
		return "⭐ Qualified nurture"
	default:
		return "📋 Low priority"
	}
}

// Evaluate runs the full pipeline on a set of criteria.
func Evaluate(c Criteria) (score int, tier Tier, label string) {
	score = Score(c)
	return score, TierForScore(score), PriorityLabel(score)
}

var segmentTiers = map[Segment]Tier{
	SegmentChemicalRecycling: Tier1,
	SegmentTireRecycling:     Tier1,
	SegmentFoodGradePack:     Tier1,
	SegmentEcoOrganisme:      Tier2,
	SegmentFlexiblePack:      Tier2,
	SegmentCompounder:        Tier2,
	SegmentWasteManagement:   Tier3,
	SegmentFMCGBrand:         Tier3,
	SegmentEquipment:         Tier3,
}

// SegmentTier returns the tier a segment belongs to on its own, independent
// of the numeric score. Unknown segments are non-target.
func SegmentTier(s Segment) Tier {
	if t, ok := segmentTiers[s]; ok {
		return t
	}
	return NonTarget
}

// segmentKeywords drives keyword-based segment inference over free text.
// Order matters: earlier entries win on the first keyword hit.
var segmentKeywords = []struct {
	segment  Segment
	keywords []string
}{
	{SegmentChemicalRecycling, []string{
		"chemical recycling", "chemical recycl", "pyrolysis", "plastic-to-fuel",
		"depolymerization", "chemical upcycling", "advanced recycling",
	}},
	{SegmentTireRecycling, []string{
		"tire recycling", "tyre recycling", "rubber recycling",
		"tire pyrolysis", "tyre pyrolysis", "crumb rubber", "pneu",
	}},
	{SegmentFoodGradePack, []string{
		"food packaging", "food grade", "food-grade", "food contact",
		"pet recycling", "rpet", "food safe packaging",
	}},
	{SegmentEcoOrganisme, []string{
		"eco-organisme", "éco-organisme", "producer responsibility", "epr scheme",
		"packaging recovery", "recycling scheme", "pro scheme",
	}},
	{SegmentFlexiblePack, []string{
		"flexible packaging", "film packaging", "pouch", "multilayer",
		"flexible films", "soft packaging", "converter",
	}},
	{SegmentCompounder, []string{
		"compounder", "compounding", "masterbatch", "plastic compound",
		"polymer compound", "additive",
	}},
	{SegmentWasteManagement, []string{
		"waste management", "waste collection", "recycling center", "mrf",
		"material recovery", "waste processing", "déchet",
	}},
	{SegmentFMCGBrand, []string{
		"consumer goods", "fmcg", "cpg", "brand owner", "packaged goods",
		"retail brand",
	}},
	{SegmentEquipment, []string{
		"recycling equipment", "processing equipment", "manufacturing equipment",
		"machinery", "sorting",
	}},
}

// DetectSegment infers a company segment from free-text inputs (company name,
// job title, website, notes). Returns false when nothing matches.
func DetectSegment(texts ...string) (Segment, bool) {
	combined := strings.ToLower(strings.Join(texts, " "))
	for _, entry := range segmentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.segment, true
			}
		}
	}
	return SegmentOther, false
}
