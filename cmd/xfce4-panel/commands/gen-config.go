package commands

import (
	"fmt"
	"path/filepath"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/xfce4-panel/pkg/panel"
	"github.com/skycoin/xfce4-panel/pkg/util/pathutil"
)

var (
	output        string
	replace       bool
	configLocType = pathutil.HomeLoc
)

func init() {
	rootCmd.AddCommand(genConfigCmd)
	genConfigCmd.Flags().StringVarP(&output, "output", "o", "", "path of output config file. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&replace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generates a panel config file",
	PreRun: func(_ *cobra.Command, _ []string) {
		log := logging.MustGetLogger("gen-config")
		if output == "" {
			var ok bool
			if output, ok = pathutil.PanelDefaults().Get(configLocType); !ok {
				log.Fatalln("invalid config type:", configLocType)
			}
			log.Infof("No 'output' set; using default path: %s", output)
		}
		var err error
		if output, err = filepath.Abs(output); err != nil {
			log.WithError(err).Fatalln("invalid output provided")
		}
	},
	Run: func(_ *cobra.Command, _ []string) {
		log := logging.MustGetLogger("gen-config")
		conf := panel.DefaultConfig()
		if configLocType == pathutil.LocalLoc {
			conf.LogStore.Location = "/var/cache/xfce4/panel/plugin-logs.db"
		}
		if err := pathutil.WriteJSONConfig(conf, output, replace); err != nil {
			log.WithError(err).Fatalln("failed to write config")
		}
	},
}
