package main

import (
	"fmt"
	"os"

	"gagyebu/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := cli.NewRootCmd(&cli.App{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
