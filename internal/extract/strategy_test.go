package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestResultStrategiesPriority(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		report   string
		strategy string
	}{
		{
			name:     "embedded data beats region",
			html:     `<html><head><script type="application/ld+json">{"finishOrder":[4,2,9]}</script></head><body><div id="result">1-2-3</div></body></html>`,
			report:   "4-2-9",
			strategy: "embedded-data",
		},
		{
			name:     "data attribute",
			html:     `<body><section class="race-result" data-result="5 - 11 - 3">Winner: 5</section></body>`,
			report:   "5-11-3",
			strategy: "result-region",
		},
		{
			name:     "invalid region falls through to sub-event",
			html:     `<body><div class="finish-order">pending</div><div class="sub-event"><span class="result">7-8-1</span></div></body>`,
			report:   "7-8-1",
			strategy: "sub-event",
		},
		{
			name:     "labelled free text",
			html:     `<body><p>Held on 12 May 2024.</p><p>Result: 2 - 14 - 6</p></body>`,
			report:   "2-14-6",
			strategy: "free-text",
		},
		{
			name:     "bare sequence in free text",
			html:     `<body><p>Finishers 3-10-12 after a photo.</p></body>`,
			report:   "3-10-12",
			strategy: "free-text",
		},
		{
			name:     "embedded script with out of range entries is skipped",
			html:     `<body><script>var data = {"result": "45-2-3"};</script><div id="result">1-2-3</div></body>`,
			report:   "1-2-3",
			strategy: "result-region",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, strategy, ok := First(mustDoc(t, tt.html), ResultStrategies())
			require.True(t, ok)
			assert.Equal(t, tt.report, report)
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestResultStrategiesNoResult(t *testing.T) {
	_, _, ok := First(mustDoc(t, `<body><p>Meeting abandoned 2024-05-12.</p></body>`), ResultStrategies())
	assert.False(t, ok)
}

func TestDateStrategies(t *testing.T) {
	inMay := func(ts time.Time) bool { return ts.Year() == 2024 && ts.Month() == time.May }
	tests := []struct {
		name     string
		html     string
		want     string
		strategy string
	}{
		{"time element", `<body><time datetime="2024-05-18T13:00:00+09:00">Sat</time></body>`, "2024-05-18", "time-element"},
		{"meta", `<head><meta itemprop="startDate" content="2024-05-04"></head>`, "2024-05-04", "meta"},
		{"json-ld", `<head><script type="application/ld+json">{"@type":"Event","startDate":"2024-05-26"}</script></head>`, "2024-05-26", "json-ld"},
		{"heading", `<body><h1>Tokyo Meeting, Sunday 19th May 2024</h1></body>`, "2024-05-19", "heading"},
		{"free text", `<body><p>Racing begins May 11, 2024 at noon.</p></body>`, "2024-05-11", "free-text"},
		{"out of period skipped", `<body><time datetime="2023-12-01">old</time><p>Run on 2024-05-09</p></body>`, "2024-05-09", "free-text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, ok := First(mustDoc(t, tt.html), DateStrategies(inMay))
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestVenueStrategies(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		want     string
		strategy string
	}{
		{"meta", `<head><meta property="event:location" content="Tokyo"></head>`, "Tokyo", "meta"},
		{"json-ld", `<head><script type="application/ld+json">{"location":{"@type":"Place","name":"GB - Ascot"}}</script></head>`, "GB - Ascot", "json-ld"},
		{"element", `<body><span class="venue"> Kyoto </span></body>`, "Kyoto", "venue-element"},
		{"labelled", `<body><p>Venue: Hanshin</p><p>Going: good</p></body>`, "Hanshin", "labelled-text"},
		{"title", `<head><title>Race 3 at Nakayama - Results</title></head>`, "Nakayama", "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, ok := First(mustDoc(t, tt.html), VenueStrategies())
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.strategy, strategy)
		})
	}

	_, _, ok := First(mustDoc(t, `<body><p>Nothing here</p></body>`), VenueStrategies())
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-05-12":                "2024-05-12",
		"2024-05-12T23:30:00+09:00": "2024-05-12",
		"12 May 2024":               "2024-05-12",
		"12th May 2024":             "2024-05-12",
		"May 12, 2024":              "2024-05-12",
		"Sun, 12 May 2024":          "2024-05-12",
		"3 Sept 2024":               "2024-09-03",
	} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got.Format(time.DateOnly), in)
	}
	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
}
