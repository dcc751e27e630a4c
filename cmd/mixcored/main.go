package main

import "github.com/fluxmix/mixcore/cmd/mixcored/cmd"

func main() {
	cmd.Execute()
}
