// Package main is the tango2bag command line.
package main

import (
	"os"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/cli"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger("tango2bag").Fatal(err)
	}
}
