package httpadapter

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supportedTags = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Portuguese,
}

var localeMatcher = language.NewMatcher(supportedTags)

// ResolveTag picks the display locale from an explicit lang value or an
// Accept-Language header, falling back to English.
func ResolveTag(lang string, acceptLanguage string) language.Tag {
	if lang = strings.TrimSpace(lang); lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			matched, _, _ := localeMatcher.Match(tag)
			return baseTag(matched)
		}
	}
	if acceptLanguage = strings.TrimSpace(acceptLanguage); acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
			matched, _, _ := localeMatcher.Match(tags...)
			return baseTag(matched)
		}
	}
	return language.English
}

// baseTag strips the -u-rg extension Match attaches so printers see a
// plain supported tag.
func baseTag(tag language.Tag) language.Tag {
	base, _ := tag.Base()
	matched, err := language.Compose(base)
	if err != nil {
		return language.English
	}
	return matched
}

func percentageLabel(printer *message.Printer, percentage float64) string {
	return printer.Sprintf("%.1f%%", percentage)
}
