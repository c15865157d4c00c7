package items

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycoin/xfce4-panel/cmd/panel-cli/internal"
)

var (
	addArgs []string
	since   time.Duration
)

func init() {
	addCmd.Flags().StringSliceVarP(&addArgs, "args", "a", []string{},
		"args in the form \"arg1,arg2,arg3...\" handed to the plugin")
	logsCmd.Flags().DurationVarP(&since, "since", "s", 0, "only show lines logged within this duration")

	RootCmd.AddCommand(
		lsCmd,
		modulesCmd,
		addCmd,
		dialogCmd,
		logsCmd,
	)
}

// RootCmd contains commands that manage the items of the panel.
var RootCmd = &cobra.Command{
	Use:   "items",
	Short: "Contains sub-commands that manage the plugins of the running panel",
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Lists the plugins currently on the panel",
	Run: func(_ *cobra.Command, _ []string) {
		items, err := internal.Client().ListItems()
		internal.Catch(err)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
		_, err = fmt.Fprintln(w, "id\tname\texternal\tstate")
		internal.Catch(err)
		for _, item := range items {
			_, err = fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", item.ID, item.Name, item.External, item.State)
			internal.Catch(err)
		}
		internal.Catch(w.Flush())
	},
}

var modulesCmd = &cobra.Command{
	Use:   "ls-modules",
	Short: "Lists the plugin modules that can be added",
	Run: func(_ *cobra.Command, _ []string) {
		modules, err := internal.Client().ListModules()
		internal.Catch(err)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
		_, err = fmt.Fprintln(w, "name\tdisplay_name\tunique\tcomment")
		internal.Catch(err)
		for _, m := range modules {
			_, err = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", m.Name, m.DisplayName, m.Unique, m.Comment)
			internal.Catch(err)
		}
		internal.Catch(w.Flush())
	},
}

var addCmd = &cobra.Command{
	Use:   "add <module>",
	Short: "Adds a plugin of the given module to the panel",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		internal.Catch(internal.Client().AddNewItem(args[0], addArgs), "adding item...")
		fmt.Println("OK")
	},
}

var dialogCmd = &cobra.Command{
	Use:   "dialog",
	Short: "Opens the add new items dialog",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(internal.Client().DisplayItemsDialog())
		fmt.Println("OK")
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Prints the captured output of a plugin wrapper",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		var from time.Time
		if since > 0 {
			from = time.Now().Add(-since)
		}
		lines, err := internal.Client().PluginLogs(internal.ParseID("id", args[0]), from)
		internal.Catch(err)
		for _, line := range lines {
			fmt.Println(line)
		}
	},
}
