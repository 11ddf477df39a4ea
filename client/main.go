package main

import "github.com/processone/fluux-messenger-sub003/client/cmd"

func main() {
	cmd.Execute()
}
