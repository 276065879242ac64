// Command cvrp generates problem files and runs the solvers from the shell.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"cvrpsim/internal/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cvrp"
	app.Usage = "capacitated vehicle routing with ant colony and genetic solvers"
	app.Version = buildinfo.String()
	app.ErrWriter = os.Stderr
	app.Commands = []cli.Command{
		generateCommand,
		solveCommand,
		compareCommand,
		tokenCommand,
	}
	return app
}
