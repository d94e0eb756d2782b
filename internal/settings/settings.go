package settings

import (
	"math"
	"strings"
)

// Language is a selectable UI and voice language.
type Language struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

var languages = []Language{
	{ID: "en", Name: "English", Flag: "🇬🇧"},
	{ID: "es", Name: "Spanish", Flag: "🇪🇸"},
	{ID: "fr", Name: "French", Flag: "🇫🇷"},
	{ID: "de", Name: "German", Flag: "🇩🇪"},
	{ID: "hi", Name: "Hindi", Flag: "🇮🇳"},
	{ID: "ko", Name: "Korean", Flag: "🇰🇷"},
}

const DefaultLanguage = "en"

// Languages returns the full catalog in display order.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// SearchLanguages filters the catalog by a case-insensitive substring of the
// language name. An empty query returns everything.
func SearchLanguages(query string) []Language {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Language, 0, len(languages))
	for _, lang := range languages {
		if q == "" || strings.Contains(strings.ToLower(lang.Name), q) {
			out = append(out, lang)
		}
	}
	return out
}

func LookupLanguage(id string) (Language, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, lang := range languages {
		if lang.ID == id {
			return lang, true
		}
	}
	return Language{}, false
}

const (
	MinFontScale     = 0.5
	MaxFontScale     = 1.5
	BaseFontSizePt   = 18.0
	DefaultFontScale = 1.0
)

// FontScale is the appearance slider reading and what it implies.
type FontScale struct {
	Factor   float64 `json:"factor"`
	Percent  int     `json:"percent"`
	FontSize float64 `json:"font_size"`
}

// ScaleFont clamps factor into the slider range and derives the label
// percentage and sample font size.
func ScaleFont(factor float64) FontScale {
	if math.IsNaN(factor) {
		factor = DefaultFontScale
	}
	factor = math.Max(MinFontScale, math.Min(MaxFontScale, factor))
	return FontScale{
		Factor:   factor,
		Percent:  int(math.Round(factor * 100)),
		FontSize: BaseFontSizePt * factor,
	}
}
