package main

import (
	"os"

	"github.com/sagechat/sage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
