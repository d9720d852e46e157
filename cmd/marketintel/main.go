package main

import (
	"context"
	"os"

	"marketintel/cmd/marketintel/commands"
)

func main() {
	if err := commands.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
