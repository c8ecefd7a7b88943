package main

import (
	"os"

	"github.com/MeKo-Tech/leafscan/cmd/leafscan/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
