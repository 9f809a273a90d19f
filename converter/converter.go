// Package converter turns super frame files into bags and exports single frames to plain
// image, point cloud and JSON files.
package converter

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/config"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/utils"
)

// Summary describes one Convert call.
type Summary struct {
	RunID    uuid.UUID
	Files    int
	Frames   int
	Messages int
	// Skipped lists the files left out when skipping invalid files. Errors aggregates their
	// errors and any failed release.
	Skipped []string
	Errors  error
	First   ros.Time
	Last    ros.Time
}

// Converter writes the messages of super frames to a bag.
type Converter struct {
	conf   *config.Config
	dec    superframe.Decoder
	logger logging.Logger
}

// New returns a Converter using dec for every file.
func New(conf *config.Config, dec superframe.Decoder, logger logging.Logger) *Converter {
	return &Converter{conf: conf, dec: dec, logger: logger}
}

// ListFiles returns the files of dir matching pattern, sorted by name.
func ListFiles(dir, pattern string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

type parseResult struct {
	parser *superframe.Parser
	err    error
}

// Convert decodes files in parallel and writes the messages of each frame to bag in the
// order of files. With SkipInvalid set a file that fails is logged and left out; otherwise
// the first failure stops the conversion. Every decoded frame is released before Convert
// returns.
func (c *Converter) Convert(ctx context.Context, bag *ros.BagWriter, files []string) (*Summary, error) {
	summary := &Summary{RunID: uuid.New(), Files: len(files)}
	logger := c.logger.Sublogger("convert")
	logger.Infow("converting super frames", "run_id", summary.RunID.String(), "files", len(files))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan parseResult, len(files))
	for i := range results {
		results[i] = make(chan parseResult, 1)
	}
	var group errgroup.Group
	group.SetLimit(utils.Workers(c.conf.Workers, len(files)))
	launched := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(launched)
		for i, file := range files {
			group.Go(func() error {
				p, err := superframe.NewParser(ctx, c.conf.ParserConfig(file), c.dec, logger)
				results[i] <- parseResult{parser: p, err: err}
				return nil
			})
		}
	})

	var convertErr error
	for i, file := range files {
		res := <-results[i]
		if convertErr != nil {
			if res.parser != nil {
				goutils.UncheckedError(res.parser.Close())
			}
			continue
		}
		if res.err == nil {
			if err := c.writeFrame(bag, res.parser, summary, logger); err != nil {
				convertErr = errors.Wrapf(err, "error writing %q", file)
				cancel()
			}
			continue
		}
		if c.conf.SkipInvalid && ctx.Err() == nil {
			logger.Warnw("skipping super frame", "path", file, "error", res.err)
			summary.Skipped = append(summary.Skipped, file)
			summary.Errors = multierr.Append(summary.Errors, res.err)
			continue
		}
		convertErr = errors.Wrapf(res.err, "error converting %q", file)
		cancel()
	}
	<-launched
	//nolint:errcheck
	group.Wait()

	if convertErr != nil {
		return summary, convertErr
	}
	logger.Infow("converted super frames",
		"run_id", summary.RunID.String(),
		"frames", summary.Frames,
		"messages", summary.Messages,
		"skipped", len(summary.Skipped))
	return summary, nil
}

// writeFrame writes every message of p and closes it. Only bag errors are returned; a
// failed release is recorded in the summary.
func (c *Converter) writeFrame(bag *ros.BagWriter, p *superframe.Parser, summary *Summary, logger logging.Logger) error {
	stamp := p.Stamp()
	if summary.Frames > 0 && stamp.Before(summary.Last) {
		logger.Warnw("super frame is older than the previous one", "path", p.Path(),
			"stamp", stamp.Seconds(), "previous", summary.Last.Seconds())
	}
	written, err := WriteFrame(bag, c.conf.Topics, p)
	summary.Messages += written
	if closeErr := p.Close(); closeErr != nil {
		logger.Warnw("error releasing super frame", "path", p.Path(), "error", closeErr)
		summary.Errors = multierr.Append(summary.Errors, closeErr)
	}
	if err != nil {
		return err
	}
	if summary.Frames == 0 || stamp.Before(summary.First) {
		summary.First = stamp
	}
	if summary.Frames == 0 || summary.Last.Before(stamp) {
		summary.Last = stamp
	}
	summary.Frames++
	logger.Debugw("wrote super frame", "path", p.Path(), "stamp", stamp.Seconds(), "messages", written)
	return nil
}

// WriteFrame writes the messages of p to bag on the given topics, stamped with the frame's
// capture time, and returns how many were written. An empty DepthImage topic leaves the
// depth image out.
func WriteFrame(bag *ros.BagWriter, topics config.Topics, p *superframe.Parser) (int, error) {
	messages := []struct {
		topic string
		msg   ros.Message
	}{
		{topics.SmallImage, p.SmallImage()},
		{topics.SmallCameraInfo, p.SmallCameraInfo()},
		{topics.BigImage, p.BigImage()},
		{topics.BigCameraInfo, p.BigCameraInfo()},
		{topics.PointCloud, p.PointCloud()},
		{topics.DepthImage, p.DepthImage()},
		{topics.Imu, p.Imu()},
	}
	written := 0
	for _, m := range messages {
		if m.topic == "" {
			continue
		}
		if err := bag.WriteMessage(m.topic, p.Stamp(), m.msg); err != nil {
			return written, errors.Wrapf(err, "error writing %s", m.topic)
		}
		written++
	}
	return written, nil
}
