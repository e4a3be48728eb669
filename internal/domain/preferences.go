package domain

import "fmt"

// Theme is the color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// FontType selects the body font.
type FontType string

const (
	FontNormal   FontType = "normal"
	FontDyslexic FontType = "dyslexic"
)

// Locale is the interface language.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleRO Locale = "ro"
	LocaleFR Locale = "fr"
)

// Preferences are the per-device account settings. TertiaryColor is
// optional; nil means no middle gradient stop.
type Preferences struct {
	PrimaryColor      string   `json:"primaryColor"`
	SecondaryColor    string   `json:"secondaryColor"`
	TertiaryColor     *string  `json:"tertiaryColor,omitempty"`
	Theme             Theme    `json:"theme"`
	FontType          FontType `json:"fontType"`
	Locale            Locale   `json:"locale"`
	CompactMode       bool     `json:"compactMode"`
	AnimationsEnabled bool     `json:"animationsEnabled"`
}

// DefaultPreferences returns the factory settings.
func DefaultPreferences() Preferences {
	tertiary := "#8b5cf6"
	return Preferences{
		PrimaryColor:      "#06b6d4",
		SecondaryColor:    "#ec4899",
		TertiaryColor:     &tertiary,
		Theme:             ThemeSystem,
		FontType:          FontNormal,
		Locale:            LocaleEN,
		CompactMode:       false,
		AnimationsEnabled: true,
	}
}

// GradientTheme is a three-stop color gradient. Via is empty when there is
// no middle stop.
type GradientTheme struct {
	From string `json:"from"`
	Via  string `json:"via,omitempty"`
	To   string `json:"to"`
}

// Gradient derives the gradient from the color preferences.
func (p Preferences) Gradient() GradientTheme {
	g := GradientTheme{From: p.PrimaryColor, To: p.SecondaryColor}
	if p.TertiaryColor != nil {
		g.Via = *p.TertiaryColor
	}
	return g
}

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// ParseFontType validates a font type name.
func ParseFontType(s string) (FontType, error) {
	switch f := FontType(s); f {
	case FontNormal, FontDyslexic:
		return f, nil
	}
	return "", fmt.Errorf("unknown font type %q", s)
}

// ParseLocale validates a locale code.
func ParseLocale(s string) (Locale, error) {
	switch l := Locale(s); l {
	case LocaleEN, LocaleRO, LocaleFR:
		return l, nil
	}
	return "", fmt.Errorf("unknown locale %q", s)
}
