package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"gasflow/internal/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsShow(cmd.Context())
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set one preference (" + strings.Join(prefs.Fields(), ", ") + ")",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsSet(cmd.Context(), args[0], args[1])
	},
}

var prefsToggleThemeCmd = &cobra.Command{
	Use:   "toggle-theme",
	Short: "Switch between light and dark theme",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsToggleTheme(cmd.Context())
	},
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsReset(cmd.Context())
	},
}

func init() {
	prefsCmd.AddCommand(prefsSetCmd, prefsToggleThemeCmd, prefsResetCmd)
}
