package main

import (
	"os"

	"github.com/LanXuage/gzmap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
