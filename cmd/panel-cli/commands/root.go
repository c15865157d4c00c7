package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skycoin/xfce4-panel/cmd/panel-cli/commands/items"
	"github.com/skycoin/xfce4-panel/cmd/panel-cli/internal"
)

var rootCmd = &cobra.Command{
	Use:   "panel-cli",
	Short: "Command Line Interface for xfce4-panel",
}

var restart bool

func init() {
	quitCmd.Flags().BoolVarP(&restart, "restart", "r", false, "restart the panel instead of quitting")

	rootCmd.AddCommand(
		items.RootCmd,
		prefsCmd,
		saveCmd,
		quitCmd,
	)
}

var prefsCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Opens the panel preferences dialog",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(internal.Client().DisplayPreferencesDialog())
		fmt.Println("OK")
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Saves the panel and plugin configuration",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(internal.Client().Save())
		fmt.Println("OK")
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Quits or restarts the panel",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(internal.Client().Terminate(restart))
		fmt.Println("OK")
	},
}

// Execute executes root CLI command.
func Execute() {
	rootCmd.Execute() //nolint:errcheck
}
