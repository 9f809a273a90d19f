package cli

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/converter"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
)

// ConvertAction is the corresponding action for 'convert'.
func ConvertAction(c *cli.Context) (err error) {
	rc, err := newRunContext(c)
	if err != nil {
		return err
	}
	defer rc.close()

	files := c.Args().Slice()
	if dir := c.String(dirFlag); dir != "" {
		listed, err := converter.ListFiles(dir, rc.conf.Pattern)
		if err != nil {
			return errors.Wrapf(err, "error listing %q", dir)
		}
		if len(listed) == 0 {
			warningf(c.App.ErrWriter, "no files in %q match %q", dir, rc.conf.Pattern)
		}
		files = append(files, listed...)
	}
	if len(files) == 0 {
		return errors.New("no super frame files given, pass files or --dir")
	}
	sort.Strings(files)

	bag, err := ros.NewBagWriter(c.String(outFlag))
	if err != nil {
		return err
	}
	bag.SetChunkThreshold(rc.conf.ChunkThreshold)
	defer func() {
		err = multierr.Combine(err, bag.Close())
	}()

	summary, err := converter.New(rc.conf, rc.decoder, rc.logger).Convert(c.Context, bag, files)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %d frames (%d messages) to %s", summary.Frames, summary.Messages, c.String(outFlag))
	if summary.Frames > 0 {
		printf(c.App.Writer, "stamps %.6f to %.6f", summary.First.Seconds(), summary.Last.Seconds())
	}
	for _, skipped := range summary.Skipped {
		warningf(c.App.ErrWriter, "skipped %s", skipped)
	}
	if summary.Errors != nil && len(summary.Skipped) == 0 {
		warningf(c.App.ErrWriter, "%v", summary.Errors)
	}
	return nil
}
