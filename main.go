package main

import (
	"github.com/sidkik/parasync/cmd"
	"github.com/sidkik/parasync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
