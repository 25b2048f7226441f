package speech

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/language"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

// RegionRule classifies voices for ranking. Rules are evaluated top to bottom.
type RegionRule struct {
	Name     string
	Codes    []string
	Pattern  *regexp.Regexp
	Priority int
}

// DefaultRegionRules is the ordered region table used by the catalog.
var DefaultRegionRules = []RegionRule{
	{
		Name:     "Indian English",
		Codes:    []string{"en-IN"},
		Pattern:  regexp.MustCompile(`(?i)india|indian|bengali|hindi|tamil|telugu|malayalam|kannada|gujarati|marathi|punjabi`),
		Priority: 1,
	},
	{
		Name:     "Middle Eastern English",
		Codes:    []string{"en-AE", "en-SA", "en-QA", "en-KW", "en-BH", "en-OM", "en-YE", "en-JO", "en-LB"},
		Pattern:  regexp.MustCompile(`(?i)arabic|egypt|saudi|uae|qatar|kuwait|bahrain|oman|yemen|jordan|lebanon|middle.?east(ern)?`),
		Priority: 2,
	},
	{
		Name:     "General English",
		Codes:    []string{"en-US", "en-GB", "en-AU", "en-CA", "en-NZ", "en-ZA", "en-IE"},
		Pattern:  regexp.MustCompile(`(?i)english|us.?english|uk.?english|australian|british|american|canadian`),
		Priority: 3,
	},
}

// Catalog ranks platform voices against a region table.
type Catalog struct {
	rules []RegionRule
}

// NewCatalog returns a catalog over rules, or DefaultRegionRules when rules is empty.
func NewCatalog(rules []RegionRule) *Catalog {
	if len(rules) == 0 {
		rules = DefaultRegionRules
	}
	return &Catalog{rules: rules}
}

// Build filters, classifies and sorts the platform voices.
func (c *Catalog) Build(voices []speechmodel.PlatformVoice) []speechmodel.VoiceOption {
	eligible := lo.Filter(voices, func(v speechmodel.PlatformVoice, _ int) bool {
		return c.eligible(v.Lang)
	})

	options := lo.Map(eligible, func(v speechmodel.PlatformVoice, _ int) speechmodel.VoiceOption {
		option := speechmodel.VoiceOption{PlatformVoice: v, Priority: len(c.rules) + 1}
		if rule, ok := c.classify(v); ok {
			option.Region = rule.Name
			option.Priority = rule.Priority
		}
		return option
	})

	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.LocalService != b.LocalService {
			return a.LocalService
		}
		if a.Default != b.Default {
			return a.Default
		}
		return a.Name < b.Name
	})
	return options
}

// Pick chooses the default voice for a user locale.
func (c *Catalog) Pick(options []speechmodel.VoiceOption, locale string) (speechmodel.VoiceOption, bool) {
	if len(options) == 0 {
		return speechmodel.VoiceOption{}, false
	}

	tag := NormalizeLang(locale)
	region, hasRegion := c.regionForLocale(tag)

	matches := lo.Filter(options, func(o speechmodel.VoiceOption, _ int) bool {
		if tag != "" && strings.EqualFold(NormalizeLang(o.Lang), tag) {
			return true
		}
		return hasRegion && o.Region == region.Name
	})
	if len(matches) > 0 {
		if female, ok := lo.Find(matches, func(o speechmodel.VoiceOption) bool {
			return strings.Contains(strings.ToLower(o.Name), "female")
		}); ok {
			return female, true
		}
		return matches[0], true
	}

	if classified, ok := lo.Find(options, func(o speechmodel.VoiceOption) bool {
		return o.Region != ""
	}); ok {
		return classified, true
	}
	return options[0], true
}

func (c *Catalog) classify(v speechmodel.PlatformVoice) (RegionRule, bool) {
	lang := NormalizeLang(v.Lang)
	for _, rule := range c.rules {
		if lo.ContainsBy(rule.Codes, func(code string) bool { return strings.EqualFold(code, lang) }) {
			return rule, true
		}
		if rule.Pattern != nil && rule.Pattern.MatchString(v.Name) {
			return rule, true
		}
	}
	return RegionRule{}, false
}

func (c *Catalog) regionForLocale(tag string) (RegionRule, bool) {
	if tag == "" {
		return RegionRule{}, false
	}
	return lo.Find(c.rules, func(rule RegionRule) bool {
		return lo.ContainsBy(rule.Codes, func(code string) bool { return strings.EqualFold(code, tag) })
	})
}

func (c *Catalog) eligible(lang string) bool {
	prefix := langPrefix(lang)
	if prefix == "en" {
		return true
	}
	for _, rule := range c.rules {
		for _, code := range rule.Codes {
			if prefix != "" && langPrefix(code) == prefix {
				return true
			}
		}
	}
	return false
}

func langPrefix(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		return lang[:i]
	}
	return lang
}

// NormalizeLang canonicalises a BCP 47 tag such as "en_in" to "en-IN".
// Unparseable input is returned trimmed.
func NormalizeLang(lang string) string {
	raw := strings.TrimSpace(lang)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return raw
	}
	return tag.String()
}
