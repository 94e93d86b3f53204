package main

import (
	"github.com/wastewatch/wastewatch/cmd/wastewatch/commands"
)

func main() {
	commands.Execute()
}
