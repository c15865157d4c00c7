/*
Panel hosting its plugins in-process or in wrapper processes
*/
package main

import "github.com/skycoin/xfce4-panel/cmd/xfce4-panel/commands"

func main() {
	commands.Execute()
}
