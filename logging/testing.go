package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender logs through tb.Log so that output of parallel tests stays with its test.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender writing to tb.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatEntry(entry, fields)
	tapp.tb.Log(line)
	return err
}

func (tapp *testAppender) Sync() error {
	return nil
}
