package podscribe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const bundleCountFormat = "%d Various content-category bundles"

var (
	arnWordRe    = regexp.MustCompile(`\barn\b`)
	geotargetRe  = regexp.MustCompile(`^RON - .+ Geotarget$`)
	legacyMarker = regexp.MustCompile(`^[A-Z]+_BUNDLE$`)
)

// familyShows lists the only named shows a family publisher reports; any
// other plain label under a family publisher is dropped.
var familyShows = map[string]map[string]bool{
	FamilyARN: {runOfNetwork: true},
	FamilyNZME: {
		theFrontPage:                  true,
		"Fletch, Vaughan, and Hayley": true,
		"The Hauraki Big Show":        true,
		"The Country":                 true,
		"The ACC Network":             true,
		"Newstalk":                    true,
	},
	FamilyGenuina: {"Cafe Con Adm": true},
}

// PublisherFamily returns the bundle family for a publisher name, or "".
func PublisherFamily(publisher string) string {
	p := strings.ToLower(publisher)
	switch {
	case strings.Contains(p, "australian radio network") || arnWordRe.MatchString(p):
		return FamilyARN
	case strings.Contains(p, "nzme"):
		return FamilyNZME
	case strings.Contains(p, "genuina"):
		return FamilyGenuina
	default:
		return ""
	}
}

// FormatShows produces the display list for one publisher. Family publishers
// keep only their own named shows (and geotargets for Genuina). Output is
// deterministic for any ordering of shows.
func FormatShows(publisher string, shows []string) []string {
	family := PublisherFamily(publisher)

	var named, geos []string
	subtypes := make(map[string]struct{})
	seen := make(map[string]struct{}, len(shows))

	for _, s := range shows {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}

		if fam, sub, ok := ParseBundleMarker(s); ok {
			if family != "" && fam == family && strings.TrimSpace(sub) != "" {
				subtypes[sub] = struct{}{}
			}
			continue
		}
		if legacyMarker.MatchString(s) {
			continue
		}
		if family == FamilyGenuina && geotargetRe.MatchString(s) {
			geos = append(geos, s)
			continue
		}
		if family != "" && !familyShows[family][s] {
			continue
		}
		named = append(named, s)
	}

	sort.Strings(named)
	sort.Strings(geos)

	out := make([]string, 0, len(named)+len(geos)+1)
	out = append(out, named...)
	out = append(out, geos...)
	if len(subtypes) > 0 {
		out = append(out, fmt.Sprintf(bundleCountFormat, len(subtypes)))
	}
	return out
}
