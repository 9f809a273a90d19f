package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/config"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "\x1b[1;33mWarning:\x1b[0m "+format+"\n", a...)
}

// runContext is what every action needs: the logger, the config and a decoder.
type runContext struct {
	logger  logging.Logger
	conf    *config.Config
	decoder superframe.Decoder
	closers []func() error
}

func newRunContext(c *cli.Context) (*runContext, error) {
	logger := logging.NewBlankLogger("tango2bag")
	logger.SetLevel(logging.INFO)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	rc := &runContext{logger: logger}

	conf := config.Default()
	if path := c.String(configFlag); path != "" {
		var err error
		conf, err = config.Read(c.Context, path, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading config %q", path)
		}
	}
	rc.conf = conf

	if conf.Log.Level != "" {
		level, err := logging.LevelFromString(conf.Log.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}
	logFile := conf.Log.File
	if c.String(logFileFlag) != "" {
		logFile = c.String(logFileFlag)
	}
	if logFile != "" {
		appender := logging.NewFileAppender(logFile, conf.Log.MaxSizeMB, conf.Log.MaxBackups)
		logger.AddAppender(appender)
		rc.closers = append(rc.closers, appender.Close)
	}

	if c.IsSet(workersFlag) {
		conf.Workers = c.Int(workersFlag)
	}
	if c.Bool(skipInvalidFlag) {
		conf.SkipInvalid = true
	}
	if c.String(patternFlag) != "" {
		conf.Pattern = c.String(patternFlag)
	}
	if err := conf.Validate(""); err != nil {
		rc.close()
		return nil, err
	}

	dec, err := conf.NewDecoder(c.Context, logger)
	if err != nil {
		rc.close()
		return nil, err
	}
	rc.decoder = dec
	return rc, nil
}

func (rc *runContext) close() {
	goutils.UncheckedError(rc.logger.Sync())
	for _, closer := range rc.closers {
		goutils.UncheckedError(closer())
	}
}
