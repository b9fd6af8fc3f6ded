package main

import (
	"carebook/cmd/carebook/commands"
	"carebook/internal/components/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}
