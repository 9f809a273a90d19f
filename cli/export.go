package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/converter"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/pointcloud"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
)

func parsePCDType(name string) (pointcloud.PCDType, error) {
	switch name {
	case "ascii":
		return pointcloud.PCDAscii, nil
	case "binary":
		return pointcloud.PCDBinary, nil
	default:
		return 0, errors.Errorf("unknown pcd encoding %q, expected ascii or binary", name)
	}
}

// ExportAction is the corresponding action for 'export'.
func ExportAction(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("export takes exactly one super frame FILE")
	}
	format, err := rimage.ParseImageFormat(c.String(formatFlag))
	if err != nil {
		return err
	}
	pcdType, err := parsePCDType(c.String(pcdFlag))
	if err != nil {
		return err
	}

	rc, err := newRunContext(c)
	if err != nil {
		return err
	}
	defer rc.close()

	p, err := superframe.NewParser(c.Context, rc.conf.ParserConfig(c.Args().First()), rc.decoder, rc.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, p.Close())
	}()

	manifest, err := converter.Export(c.String(outFlag), p, format, pcdType)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "exported %s to %s", manifest.Source, c.String(outFlag))
	for _, file := range manifest.Files {
		printf(c.App.Writer, "  %s", file)
	}
	return nil
}
