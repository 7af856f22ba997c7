// cmd/blink16 - the core's own runner: load one of the three guest
// binary formats and step the 8086 engine to completion, surfacing the
// guest's own exit code as the process exit status.
//
// Flags follow master-g-childhood/go/chr2png's urfave/cli.v2 idiom (the
// corpus's only CLI-flag example): a single cli.App with Aliases and a
// Value default per flag, no config file.

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/intuitionamiga/blink16"
	"gopkg.in/urfave/cli.v2"
)

func main() {
	app := &cli.App{
		Name:    "blink16",
		Usage:   "run a boot-sector, DOS or ELKS image against the 8086 core",
		Version: "v0.0.1",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "image kind: boot, dos or elks",
				Value:   "dos",
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the guest image",
			},
			&cli.BoolFlag{
				Name:  "shadow-check",
				Usage: "enforce the shadow-memory read/write permission bitmap",
				Value: true,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "trace syscall entry/exit to stderr",
			},
			&cli.BoolFlag{
				Name:  "nolinear-mmap",
				Usage: "eagerly pre-read mmap'd file contents into guest memory",
			},
		},
		Action: run,
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	imagePath := c.String("image")
	if imagePath == "" {
		cli.ShowAppHelp(c)
		return cli.Exit("", 86)
	}

	kind, err := parseKind(c.String("kind"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading image: %v", err), 1)
	}

	args := append([]string{imagePath}, c.Args().Slice()...)
	sys, _, cpu, err := blink16.LoadImage(kind, image, args)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loading image: %v", err), 1)
	}
	sys.Verbose = c.Bool("verbose")
	sys.SetShadowCheck(c.Bool("shadow-check"))
	sys.SetNolinear(c.Bool("nolinear-mmap"))

	for {
		if err := cpu.Step(); err != nil {
			if code, ok := blink16.ExitCode(err); ok {
				os.Exit(int(code))
			}
			return cli.Exit(fmt.Sprintf("halted: %v", err), 1)
		}
	}
}

func parseKind(s string) (blink16.LoaderKind, error) {
	switch s {
	case "boot":
		return blink16.LoaderBoot, nil
	case "dos":
		return blink16.LoaderDOS, nil
	case "elks":
		return blink16.LoaderELKS, nil
	default:
		return 0, fmt.Errorf("unknown image kind %q (want boot, dos or elks)", s)
	}
}
