package bbi

// DefaultInstitutions returns the standard catalog of mandatory
// barangay-based institutions and their rating criteria.
func DefaultInstitutions() []Institution {
	return []Institution{
		{
			ID:   "bbi-bdrrmc",
			Name: "Barangay Disaster Risk Reduction and Management Committee",
			Criteria: []Criterion{
				{ID: "bdrrmc-eo", Name: "Committee organized through an executive order", Tier: TierEssential},
				{ID: "bdrrmc-plan", Name: "Approved BDRRM plan for the current year", Tier: TierEssential},
				{ID: "bdrrmc-fund", Name: "BDRRM fund allocated in the annual budget", Tier: TierEssential},
				{ID: "bdrrmc-ews", Name: "Early warning system in place", Tier: TierSupporting},
				{ID: "bdrrmc-evac", Name: "Designated evacuation center", Tier: TierSupporting},
				{ID: "bdrrmc-drill", Name: "Quarterly drills conducted and documented", Tier: TierSupporting},
			},
			BasicCount: 3,
		},
		{
			ID:   "bbi-badac",
			Name: "Barangay Anti-Drug Abuse Council",
			Criteria: []Criterion{
				{ID: "badac-eo", Name: "Council organized through an executive order", Tier: TierEssential},
				{ID: "badac-plan", Name: "BADAC plan with budget allocation", Tier: TierEssential},
				{ID: "badac-meetings", Name: "Quarterly meetings held and minuted", Tier: TierEssential},
				{ID: "badac-referral", Name: "Referral records for persons who use drugs", Tier: TierSupporting},
				{ID: "badac-iec", Name: "Information and education campaigns conducted", Tier: TierSupporting},
			},
			BasicCount: 2,
		},
		{
			ID:   "bbi-bcpc",
			Name: "Barangay Council for the Protection of Children",
			Criteria: []Criterion{
				{ID: "bcpc-eo", Name: "Council organized through an executive order", Tier: TierEssential},
				{ID: "bcpc-plan", Name: "Funded children's development plan", Tier: TierEssential},
				{ID: "bcpc-diversion", Name: "Diversion program for children in conflict with the law", Tier: TierSupporting},
				{ID: "bcpc-facility", Name: "Child-friendly facility maintained", Tier: TierSupporting},
			},
			BasicCount: 2,
		},
		{
			ID:   "bbi-vawdesk",
			Name: "Barangay Violence Against Women Desk",
			Criteria: []Criterion{
				{ID: "vaw-officer", Name: "Desk officer designated", Tier: TierEssential},
				{ID: "vaw-plan", Name: "VAW desk plan with budget allocation", Tier: TierEssential},
				{ID: "vaw-room", Name: "Private interview space available", Tier: TierSupporting},
				{ID: "vaw-reports", Name: "Quarterly reports submitted on time", Tier: TierSupporting},
			},
			BasicCount: 2,
		},
		{
			ID:   "bbi-lupon",
			Name: "Lupong Tagapamayapa",
			Criteria: []Criterion{
				{ID: "lupon-constituted", Name: "Lupon constituted with sworn members", Tier: TierEssential},
				{ID: "lupon-meetings", Name: "Monthly meetings documented", Tier: TierEssential},
				{ID: "lupon-records", Name: "Case records maintained", Tier: TierSupporting},
				{ID: "lupon-settlement", Name: "Settlement rate reported", Tier: TierSupporting},
			},
			BasicCount: 2,
		},
	}
}
