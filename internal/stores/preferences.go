package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/persist"
	"github.com/roach88/receiptvault/internal/state"
)

const (
	PreferencesStoreName   = "PreferencesStore"
	PreferencesPersistName = "account-preferences"
)

// Preference store actions.
const (
	ActionSetPrimaryColor      = "SetPrimaryColor"
	ActionSetSecondaryColor    = "SetSecondaryColor"
	ActionSetTertiaryColor     = "SetTertiaryColor"
	ActionSetTheme             = "SetTheme"
	ActionSetFontType          = "SetFontType"
	ActionSetLocale            = "SetLocale"
	ActionSetCompactMode       = "SetCompactMode"
	ActionSetAnimationsEnabled = "SetAnimationsEnabled"
	ActionSetHasHydrated       = "SetHasHydrated"
	ActionResetToDefaults      = "ResetToDefaults"
)

// PreferencesState is the preferences plus the in-memory hydration flag.
type PreferencesState struct {
	domain.Preferences
	HasHydrated bool
}

// Preferences is the account preferences store. It persists as a single
// row of the shared table.
type Preferences struct {
	store    *state.Store[PreferencesState]
	persist  *persist.Middleware[PreferencesState]
	devtools *state.DevTools[PreferencesState]
	storage  *persist.SharedStorage
}

// NewPreferences creates the preferences store and starts its hydration.
func NewPreferences(cfg Config) (*Preferences, error) {
	logger := cfg.logger().With("store", PreferencesStoreName)

	storage, err := persist.NewSharedStorage(persist.SharedConfig{
		Handle:   cfg.Handle,
		Prefix:   cfg.SharedPrefix,
		Logger:   logger,
		Metrics:  cfg.Metrics,
		Observer: cfg.ErrorObserver,
	})
	if err != nil {
		return nil, err
	}

	pm, err := persist.New(persist.Options[PreferencesState]{
		Name:       PreferencesPersistName,
		Storage:    storage,
		Partialize: partializePreferences,
		Merge:      mergePreferences,
		OnRehydrate: func(api state.API[PreferencesState], err error) {
			api.Set(ActionSetHasHydrated, func(s PreferencesState) PreferencesState {
				s.HasHydrated = true
				return s
			})
		},
		Logger:  logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	p := &Preferences{persist: pm, storage: storage}
	if cfg.DevTools {
		p.devtools = state.NewDevTools(state.DevToolsOptions[PreferencesState]{Logger: logger})
	}
	p.store = state.NewBuilder(PreferencesStoreName, PreferencesState{Preferences: domain.DefaultPreferences()}).
		UseIf(p.devtools != nil, p.devtools).
		UseIf(cfg.Metrics != nil, state.Instrument[PreferencesState](cfg.Metrics)).
		Use(pm).
		Build()
	return p, nil
}

// partializePreferences persists every preference field. A missing tertiary
// color is stored as null so that clearing it survives a reload.
func partializePreferences(s PreferencesState) map[string]any {
	p := s.Preferences
	return map[string]any{
		"primaryColor":      p.PrimaryColor,
		"secondaryColor":    p.SecondaryColor,
		"tertiaryColor":     p.TertiaryColor,
		"theme":             p.Theme,
		"fontType":          p.FontType,
		"locale":            p.Locale,
		"compactMode":       p.CompactMode,
		"animationsEnabled": p.AnimationsEnabled,
	}
}

// mergePreferences overlays the persisted fields onto the current
// preferences. Fields absent from storage keep their current value.
func mergePreferences(cur PreferencesState, persisted map[string]json.RawMessage) (PreferencesState, error) {
	raw, err := json.Marshal(cur.Preferences)
	if err != nil {
		return cur, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cur, err
	}
	for k, v := range persisted {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return cur, err
	}
	var p domain.Preferences
	if err := json.Unmarshal(merged, &p); err != nil {
		return cur, fmt.Errorf("decode preferences: %w", err)
	}
	cur.Preferences = p
	return cur, nil
}

// State returns the current preferences.
func (p *Preferences) State() PreferencesState { return p.store.Get() }

// Subscribe registers fn for every future action.
func (p *Preferences) Subscribe(fn func(next, prev PreferencesState)) (unsubscribe func()) {
	return p.store.Subscribe(fn)
}

// update applies fn to a private copy of the preferences.
func (p *Preferences) update(action string, fn func(*domain.Preferences)) {
	p.store.Set(action, func(s PreferencesState) PreferencesState {
		if s.TertiaryColor != nil {
			v := *s.TertiaryColor
			s.TertiaryColor = &v
		}
		fn(&s.Preferences)
		return s
	})
}

// SetPrimaryColor sets the first gradient stop.
func (p *Preferences) SetPrimaryColor(color string) {
	p.update(ActionSetPrimaryColor, func(pr *domain.Preferences) { pr.PrimaryColor = color })
}

// SetSecondaryColor sets the last gradient stop.
func (p *Preferences) SetSecondaryColor(color string) {
	p.update(ActionSetSecondaryColor, func(pr *domain.Preferences) { pr.SecondaryColor = color })
}

// SetTertiaryColor sets the middle gradient stop. An empty color removes it.
func (p *Preferences) SetTertiaryColor(color string) {
	p.update(ActionSetTertiaryColor, func(pr *domain.Preferences) {
		if color == "" {
			pr.TertiaryColor = nil
			return
		}
		pr.TertiaryColor = &color
	})
}

// SetTheme sets the color scheme. Values are not validated here; use
// domain.ParseTheme for untrusted input.
func (p *Preferences) SetTheme(theme domain.Theme) {
	p.update(ActionSetTheme, func(pr *domain.Preferences) { pr.Theme = theme })
}

// SetFontType selects the body font.
func (p *Preferences) SetFontType(font domain.FontType) {
	p.update(ActionSetFontType, func(pr *domain.Preferences) { pr.FontType = font })
}

// SetLocale sets the interface language.
func (p *Preferences) SetLocale(locale domain.Locale) {
	p.update(ActionSetLocale, func(pr *domain.Preferences) { pr.Locale = locale })
}

// SetCompactMode toggles the dense list layout.
func (p *Preferences) SetCompactMode(enabled bool) {
	p.update(ActionSetCompactMode, func(pr *domain.Preferences) { pr.CompactMode = enabled })
}

// SetAnimationsEnabled toggles interface animations.
func (p *Preferences) SetAnimationsEnabled(enabled bool) {
	p.update(ActionSetAnimationsEnabled, func(pr *domain.Preferences) { pr.AnimationsEnabled = enabled })
}

// SetHasHydrated sets the hydration flag.
func (p *Preferences) SetHasHydrated(v bool) {
	p.store.Set(ActionSetHasHydrated, func(s PreferencesState) PreferencesState {
		s.HasHydrated = v
		return s
	})
}

// ResetToDefaults restores the factory preferences. The hydration flag is
// kept.
func (p *Preferences) ResetToDefaults() {
	p.store.Set(ActionResetToDefaults, func(s PreferencesState) PreferencesState {
		s.Preferences = domain.DefaultPreferences()
		return s
	})
}

// GradientTheme derives the gradient from the current colors.
func (p *Preferences) GradientTheme() domain.GradientTheme {
	return p.store.Get().Gradient()
}

// SetField sets a preference by its JSON field name from a string value, as
// typed on a command line.
func (p *Preferences) SetField(field, value string) error {
	switch field {
	case "primaryColor":
		p.SetPrimaryColor(value)
	case "secondaryColor":
		p.SetSecondaryColor(value)
	case "tertiaryColor":
		p.SetTertiaryColor(value)
	case "theme":
		t, err := domain.ParseTheme(value)
		if err != nil {
			return err
		}
		p.SetTheme(t)
	case "fontType":
		f, err := domain.ParseFontType(value)
		if err != nil {
			return err
		}
		p.SetFontType(f)
	case "locale":
		l, err := domain.ParseLocale(value)
		if err != nil {
			return err
		}
		p.SetLocale(l)
	case "compactMode", "animationsEnabled":
		var b bool
		switch value {
		case "true":
			b = true
		case "false":
		default:
			return fmt.Errorf("%s must be true or false, got %q", field, value)
		}
		if field == "compactMode" {
			p.SetCompactMode(b)
		} else {
			p.SetAnimationsEnabled(b)
		}
	default:
		return fmt.Errorf("unknown preference %q", field)
	}
	return nil
}

// StorageKey returns the shared-table key the preferences persist under.
func (p *Preferences) StorageKey() string {
	return p.storage.Key(PreferencesPersistName)
}

// WaitHydrated blocks until the initial hydration has finished.
func (p *Preferences) WaitHydrated(ctx context.Context) error {
	select {
	case <-p.persist.Hydrated():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rehydrate reloads the preferences from storage.
func (p *Preferences) Rehydrate(ctx context.Context) error {
	return p.persist.Rehydrate(ctx)
}

// Flush waits until every action issued so far is durable.
func (p *Preferences) Flush(ctx context.Context) error {
	return p.persist.Flush(ctx)
}

// ClearStorage removes the persisted preferences without touching memory.
func (p *Preferences) ClearStorage(ctx context.Context) {
	p.persist.ClearStorage(ctx)
}

// History returns the DevTools action history, or nil when DevTools is off.
func (p *Preferences) History() []state.HistoryEntry {
	if p.devtools == nil {
		return nil
	}
	return p.devtools.History()
}

// Close flushes pending writes and stops the background writer.
func (p *Preferences) Close() error {
	return p.store.Close()
}
