package main

import (
	_ "time/tzdata"

	"github.com/beekhof/calendar-import/cmd/calimport/cmd"
)

func main() {
	cmd.Execute()
}
