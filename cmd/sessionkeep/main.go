package main

import "github.com/jmcleod/sessionkeep/cmd/sessionkeep/cmd"

func main() {
	cmd.Execute()
}
