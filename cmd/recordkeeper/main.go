package main

import (
	"os"

	"github.com/solatis/recordkeeper/cmd/recordkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
