package main

import (
	"os"

	"github.com/spigell/agency-onboarder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
