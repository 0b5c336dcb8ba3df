package podscribe

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Bundle families. A bundle marker is "<FAMILY>_BUNDLE:<subtype>".
const (
	FamilyARN     = "ARN"
	FamilyNZME    = "NZME"
	FamilyGenuina = "GENUINA"

	bundleSuffix  = "_BUNDLE:"
	genericBundle = "generic"
	runOfNetwork  = "Run of Network"
	theFrontPage  = "The Front Page"
)

// BundleMarker encodes a collapsed campaign variant for later counting.
func BundleMarker(family, subtype string) string {
	subtype = strings.TrimSpace(subtype)
	if subtype == "" {
		subtype = genericBundle
	}
	return family + bundleSuffix + subtype
}

// ParseBundleMarker is the inverse of BundleMarker.
func ParseBundleMarker(s string) (family, subtype string, ok bool) {
	family, subtype, ok = strings.Cut(s, bundleSuffix)
	if !ok || family == "" || strings.ToUpper(family) != family {
		return "", "", false
	}
	return family, subtype, true
}

// Rule is one entry in the campaign-name cascade. Apply receives the
// lower-cased trimmed campaign and lower-cased publisher.
type Rule struct {
	Name  string
	Apply func(campaign, publisher string) (string, bool)
}

var (
	nprRonRe      = regexp.MustCompile(`^npr_ron_([a-z]+)`)
	bbcRe         = regexp.MustCompile(`^bbc_([a-z]+)`)
	nzmeBundleRe  = regexp.MustCompile(`^nzme_([a-z0-9 ]+)_`)
	genuinaGeoRe  = regexp.MustCompile(`(?:genuina_|genuina)(mexico|colombia|argentina|chile|brazil)_ron_`)
	bbcGeoTargets = map[string]string{
		"asia":    "Asia",
		"us":      "US",
		"canada":  "Canada",
		"latam":   "LatAm",
		"northam": "US",
		"europe":  "Europe",
	}
)

// cases.Caser is stateful, so each call gets its own.
func geotarget(geo string) string {
	return "RON - " + cases.Title(language.English).String(geo) + " Geotarget"
}

// firstToken is the text after prefix up to the next underscore.
func firstToken(s, prefix string) string {
	rest := strings.TrimPrefix(s, prefix)
	tok, _, _ := strings.Cut(rest, "_")
	return strings.TrimSpace(tok)
}

func literal(out string, match func(string) bool) func(string, string) (string, bool) {
	return func(c, _ string) (string, bool) {
		if match(c) {
			return out, true
		}
		return "", false
	}
}

func equals(v string) func(string) bool { return func(c string) bool { return c == v } }

func hasPrefix(prefixes ...string) func(string) bool {
	return func(c string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				return true
			}
		}
		return false
	}
}

func contains(subs ...string) func(string) bool {
	return func(c string) bool { return containsAny(c, subs) }
}

// CampaignRules is the ordered cascade; the first matching rule wins.
var CampaignRules = []Rule{
	{"npr-ron", func(c, _ string) (string, bool) {
		m := nprRonRe.FindStringSubmatch(c)
		if m == nil {
			return "", false
		}
		if m[1] == "av" {
			return "RON AV - Global", true
		}
		return geotarget(m[1]), true
	}},
	{"this-american-life", literal("This American Life", equals("this american life"))},
	{"bbc-premium", func(c, _ string) (string, bool) {
		m := bbcRe.FindStringSubmatch(c)
		if m == nil {
			return "", false
		}
		geo, ok := bbcGeoTargets[m[1]]
		if !ok {
			return "", false
		}
		return "Premium Shows - " + geo + " Target", true
	}},
	{"arn-ron", literal(runOfNetwork, hasPrefix("arn_ron_", "australian radio network_ron"))},
	{"arn-bundle", func(c, _ string) (string, bool) {
		for _, p := range []string{"arn_", "australian radio network_"} {
			if strings.HasPrefix(c, p) {
				return BundleMarker(FamilyARN, firstToken(c, p)), true
			}
		}
		return "", false
	}},
	{"mamamia-ron", literal(runOfNetwork, hasPrefix("mamamia_ron_"))},
	{"nzme-front-page", literal(theFrontPage, func(c string) bool {
		return c == "the front page" || strings.HasPrefix(c, "nzme_the front page")
	})},
	{"fletch-vaughan-hayley", literal("Fletch, Vaughan, and Hayley", contains("zm's fletch, vaughan & hayley"))},
	{"hauraki-big-show", literal("The Hauraki Big Show", contains("the hauraki big show"))},
	{"the-country", literal("The Country", equals("the country"))},
	{"nzme-acc", literal("The ACC Network", hasPrefix("nzme_acc"))},
	{"nzme-newstalk", literal("Newstalk", hasPrefix("nzme_newstalk"))},
	{"nzme-bundle", func(c, _ string) (string, bool) {
		if !strings.HasPrefix(c, "nzme_") {
			return "", false
		}
		if strings.Contains(c, "frontpage") || strings.Contains(c, "front page") {
			return theFrontPage, true
		}
		if m := nzmeBundleRe.FindStringSubmatch(c); m != nil {
			return BundleMarker(FamilyNZME, m[1]), true
		}
		return BundleMarker(FamilyNZME, genericBundle), true
	}},
	{"cafe-con-adm", literal("Cafe Con Adm", contains("cafe com adm", "by leandro vieira"))},
	{"genuina-geotarget", func(c, _ string) (string, bool) {
		m := genuinaGeoRe.FindStringSubmatch(c)
		if m == nil {
			return "", false
		}
		return geotarget(m[1]), true
	}},
	{"genuina-bundle", func(c, _ string) (string, bool) {
		for _, p := range []string{"genuina_", "genuina "} {
			if strings.HasPrefix(c, p) {
				return BundleMarker(FamilyGenuina, firstToken(c, p)), true
			}
		}
		return "", false
	}},
	{"apm-marketplace", func(c, publisher string) (string, bool) {
		if strings.Contains(c, "marketplace") && strings.Contains(publisher, "american public media") {
			return "RON - US Geotarget", true
		}
		return "", false
	}},
	{"pod-save-the-world", literal("Pod Save the World", equals("pod save the world"))},
	{"pod-save-the-uk", literal("Pod Save the UK", equals("pod save the uk"))},
	{"abc-news-ron", literal("ABC News RON", hasPrefix("abc_ron news_"))},
	{"mediaworks-ron", literal("Mediaworks RON", hasPrefix("mediaworks_mw ron_"))},
	{"mediaworks-sxm", literal("SXM RON", hasPrefix("mediaworks_sxm ron_"))},
}

// NormalizeShowName returns the display label for a show or campaign value.
// Show-column values pass through unchanged; campaign values go through
// CampaignRules and an unmatched campaign yields "" (excluded).
func NormalizeShowName(raw string, source ShowSource, publisher string) string {
	switch source {
	case SourceShow:
		return raw
	case SourceCampaign:
		return applyRules(CampaignRules, raw, publisher)
	default:
		return ""
	}
}

func applyRules(rules []Rule, raw, publisher string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	if c == "" {
		return ""
	}
	p := strings.ToLower(publisher)
	for _, r := range rules {
		if out, ok := r.Apply(c, p); ok {
			return out
		}
	}
	return ""
}
