package domain

import (
	"regexp"
	"strings"
)

var countryPrefixPattern = regexp.MustCompile(`^([A-Z]{2,3})\s*-\s*\S`)

// CountryRules maps the "XX - Venue" prefix convention to a country code.
type CountryRules struct {
	Home     string
	Prefixes []string
}

// Code returns the prefixed country of venue, or Home when no known prefix matches.
func (c CountryRules) Code(venue string) string {
	m := countryPrefixPattern.FindStringSubmatch(strings.TrimSpace(venue))
	if m != nil {
		for _, p := range c.Prefixes {
			if strings.EqualFold(strings.TrimSpace(p), m[1]) {
				return strings.ToUpper(m[1])
			}
		}
	}
	return c.Home
}
