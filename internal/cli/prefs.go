package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/stores"
)

// PrefsView is the output of the prefs commands.
type PrefsView struct {
	Preferences domain.Preferences   `json:"preferences"`
	Gradient    domain.GradientTheme `json:"gradient"`
	StorageKey  string               `json:"storageKey"`
}

// NewPrefsCommand creates the prefs command group.
func NewPrefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or edit account preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the persisted preferences",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(rootOpts, cmd, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set one preference",
		Long: `Set one preference by its field name.

Fields: primaryColor, secondaryColor, tertiaryColor, theme, fontType,
locale, compactMode, animationsEnabled. An empty tertiaryColor clears it.

Examples:
  receiptvault prefs set theme dark
  receiptvault prefs set compactMode true
  receiptvault prefs set tertiaryColor ""`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(rootOpts, cmd, func(p *stores.Preferences) error {
				if err := p.SetField(args[0], args[1]); err != nil {
					return WrapExitError(ExitCommandError, "invalid preference", err)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "reset",
		Short:         "Restore the default preferences",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(rootOpts, cmd, func(p *stores.Preferences) error {
				p.ResetToDefaults()
				return nil
			})
		},
	})

	return cmd
}

// runPrefs hydrates the preferences store, applies edit if any, closes the
// store and prints the resulting preferences.
func runPrefs(opts *RootOptions, cmd *cobra.Command, edit func(*stores.Preferences) error) (err error) {
	e, err := opts.newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	if _, err := e.db(ctx); err != nil {
		return err
	}

	var f failures
	p, err := stores.NewPreferences(e.storesConfig(f.observe))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open preferences", err).WithKind(CodeStorage)
	}
	if err := p.WaitHydrated(ctx); err != nil {
		p.Close()
		return err
	}

	if edit != nil {
		if err := edit(p); err != nil {
			p.Close()
			return err
		}
	}

	view := PrefsView{
		Preferences: p.State().Preferences,
		Gradient:    p.GradientTheme(),
		StorageKey:  p.StorageKey(),
	}
	if err := p.Close(); err != nil {
		return err
	}
	if err := f.err(); err != nil {
		return err
	}

	if opts.Format == "json" {
		return e.out.Success(view)
	}
	return writePrefsText(cmd, view)
}

func writePrefsText(cmd *cobra.Command, view PrefsView) error {
	raw, err := json.Marshal(view.Preferences)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, fields[k])
	}
	g := view.Gradient
	if g.Via != "" {
		fmt.Fprintf(w, "gradient: %s -> %s -> %s\n", g.From, g.Via, g.To)
	} else {
		fmt.Fprintf(w, "gradient: %s -> %s\n", g.From, g.To)
	}
	return nil
}
