package scraper

// Google News result page selectors.
// These are isolated here because Google changes its markup frequently.
// Update these when scraping breaks.

const (
	// Search container, present once results have rendered
	ResultsContainer = `#search, #main`

	// One news result card. The first selector matches the desktop layout,
	// the second the basic HTML layout served to simple clients.
	ResultCard = `div.SoaBEf, div.Gx5Zad`

	// Fields within a card
	CardLink   = `a[href]`
	CardTitle  = `div[role="heading"], div.n0jPhd, div.BNeawe.vvjwJb`
	CardSource = `div.MgUUmf span, .NUnG9d span, div.BNeawe.UPmit`

	// Consent interstitial shown to new browsers in some regions
	ConsentAccept = `button#L2AGLb, form[action*="consent"] button`
)

// Common wait conditions
const (
	WaitForResults = ResultsContainer
)
