/*
CLI for a running xfce4-panel
*/
package main

import (
	"github.com/skycoin/xfce4-panel/cmd/panel-cli/commands"
)

func main() {
	commands.Execute()
}
