// Package cli contains the tango2bag command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	// register the fake decoder, the default.
	_ "github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe/fake"
)

const (
	// Flags.
	configFlag      = "config"
	debugFlag       = "debug"
	logFileFlag     = "log-file"
	outFlag         = "out"
	dirFlag         = "dir"
	patternFlag     = "pattern"
	workersFlag     = "workers"
	skipInvalidFlag = "skip-invalid"
	formatFlag      = "format"
	pcdFlag         = "pcd"
	existingFlag    = "existing"
	maxFramesFlag   = "max-frames"
	topicFlag       = "topic"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut. Logs go to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "tango2bag",
		Usage:           "convert Tango super frames to ROS bags",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  logFileFlag,
				Usage: "also write logs to the rotated `FILE`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "convert super frame files into one bag",
				ArgsUsage: "[FILE...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     outFlag,
						Aliases:  []string{"o"},
						Usage:    "bag `FILE` to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  dirFlag,
						Usage: "also convert the files of `DIR` matching the configured pattern",
					},
					&cli.StringFlag{
						Name:  patternFlag,
						Usage: "glob selecting the files of --dir",
					},
					&cli.IntFlag{
						Name:  workersFlag,
						Usage: "number of files decoded at once",
					},
					&cli.BoolFlag{
						Name:  skipInvalidFlag,
						Usage: "leave out files that cannot be converted instead of failing",
					},
				},
				Action: ConvertAction,
			},
			{
				Name:      "export",
				Usage:     "export one super frame as images, a point cloud and JSON",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     outFlag,
						Aliases:  []string{"o"},
						Usage:    "output `DIR`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  formatFlag,
						Usage: "image format, one of png, ppm, qoi",
						Value: "png",
					},
					&cli.StringFlag{
						Name:  pcdFlag,
						Usage: "pcd encoding, one of ascii, binary",
						Value: "binary",
					},
				},
				Action: ExportAction,
			},
			{
				Name:  "watch",
				Usage: "append super frames written to a directory to a bag",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     dirFlag,
						Usage:    "`DIR` to watch",
						Required: true,
					},
					&cli.StringFlag{
						Name:     outFlag,
						Aliases:  []string{"o"},
						Usage:    "bag `FILE` to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  patternFlag,
						Usage: "glob selecting the files to convert",
					},
					&cli.BoolFlag{
						Name:  existingFlag,
						Usage: "also convert the matching files already in the directory",
					},
					&cli.IntFlag{
						Name:  maxFramesFlag,
						Usage: "stop after converting `N` frames",
					},
				},
				Action: WatchAction,
			},
			{
				Name:      "inspect",
				Usage:     "list the topics of a bag or print the messages of one topic as JSON",
				ArgsUsage: "BAG",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  topicFlag,
						Usage: "print the messages of `TOPIC`",
					},
				},
				Action: InspectAction,
			},
		},
	}
}
