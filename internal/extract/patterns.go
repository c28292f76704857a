package extract

import "regexp"

var (
	// embedded page data, e.g. "finishOrder": [3, 7, 1] or "result": "3-7-1"
	embeddedResultPattern = regexp.MustCompile(`(?i)"(?:finish_?order|result|results|placings|placing)"\s*:\s*(\[[^\]\[]*\]|"[^"]*")`)

	// "Result: 3 - 7 - 1" in running text
	labelledResultPattern = regexp.MustCompile(`(?i)\bresults?\s*[:\-–]\s*(\d{1,2}(?:\s*[-–—,/]\s*\d{1,2}){2,})`)

	// a bare hyphenated finisher sequence
	bareSequencePattern = regexp.MustCompile(`\b\d{1,2}(?:\s*[-–—]\s*\d{1,2}){2,}\b`)

	jsonLDStartDatePattern = regexp.MustCompile(`"startDate"\s*:\s*"([^"]+)"`)
	jsonLDLocationPattern  = regexp.MustCompile(`"location"\s*:\s*\{[^{}]*?"name"\s*:\s*"([^"]+)"`)

	labelledVenuePattern = regexp.MustCompile(`(?im)^\s*(?:venue|course|racecourse|track)\s*[:\-–]\s*(.+?)\s*$`)
	titleVenuePattern    = regexp.MustCompile(`(?i)\b(?:at|@)\s+([A-Z][A-Za-z'. ]{1,40}?)(?:\s*[-–|(,:]|\s+race\b|\s+meeting\b|$)`)

	isoDatePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dayMonthPattern = regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{4}\b`)
	monthDayPattern = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)
	ordinalSuffix   = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
)
