package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

var app = initApp()

func initApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "Alternate fuzzing engines on a fixed schedule, carrying the corpus between phases"
	app.Flags = fuzzFlags
	app.Action = fuzzAction
	app.Commands = []*cli.Command{
		fuzzCommand,
		statsCommand,
		phaseCommand,
		presetsCommand,
	}
	return app
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
