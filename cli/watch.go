package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/converter"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/watcher"
)

// WatchAction is the corresponding action for 'watch'. It runs until interrupted or, with
// --max-frames, until that many frames were written.
func WatchAction(c *cli.Context) (err error) {
	rc, err := newRunContext(c)
	if err != nil {
		return err
	}
	defer rc.close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bag, err := ros.NewBagWriter(c.String(outFlag))
	if err != nil {
		return err
	}
	bag.SetChunkThreshold(rc.conf.ChunkThreshold)
	defer func() {
		err = multierr.Combine(err, bag.Close())
	}()

	maxFrames := c.Int(maxFramesFlag)
	var frames, messages atomic.Int64
	handler := func(ctx context.Context, path string) error {
		p, err := superframe.NewParser(ctx, rc.conf.ParserConfig(path), rc.decoder, rc.logger)
		if err != nil {
			return err
		}
		written, err := converter.WriteFrame(bag, rc.conf.Topics, p)
		messages.Add(int64(written))
		if err := multierr.Combine(err, p.Close()); err != nil {
			return err
		}
		if n := frames.Inc(); maxFrames > 0 && n >= int64(maxFrames) {
			cancel()
		}
		return nil
	}

	w, err := watcher.New(watcher.Config{
		Dir:             c.String(dirFlag),
		Pattern:         rc.conf.Pattern,
		SettleDelay:     rc.conf.SettleDelay.Unwrap(),
		IncludeExisting: c.Bool(existingFlag),
	}, handler, rc.logger.Sublogger("watcher"))
	if err != nil {
		return err
	}
	<-ctx.Done()
	if err := w.Close(); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %d frames (%d messages) to %s", frames.Load(), messages.Load(), c.String(outFlag))
	return nil
}
