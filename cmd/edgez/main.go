package main

import "github.com/zoobzio/edgez/cmd/edgez/commands"

func main() {
	commands.Execute()
}
