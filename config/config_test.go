package config_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/config"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe/fake"
)

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("TANGO_INTRINSICS_DIR", "/opt/tango/calibration")

	conf, err := config.Read(context.Background(), "data/tango2bag.json", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, "data/tango2bag.json")
	test.That(t, conf.IntrinsicsDir, test.ShouldEqual, "/opt/tango/calibration")
	test.That(t, conf.FrameIDs, test.ShouldResemble, superframe.FrameIDs{
		Small: "fisheye", Big: "color", Depth: "depth", IMU: "imu_link",
	})
	test.That(t, conf.Topics.Imu, test.ShouldEqual, "/imu/data")
	test.That(t, conf.Topics.DepthImage, test.ShouldEqual, "/tango/depth/image_raw")
	test.That(t, conf.Topics.SmallImage, test.ShouldEqual, config.DefaultTopics().SmallImage)
	test.That(t, conf.InvalidDepth, test.ShouldEqual, "skip")
	test.That(t, conf.DepthScale, test.ShouldEqual, rimage.DefaultDepthScale)
	test.That(t, conf.Decoder.Name, test.ShouldEqual, fake.DecoderName)
	test.That(t, conf.Decoder.Attributes["fail_release"], test.ShouldEqual, false)
	test.That(t, conf.Workers, test.ShouldEqual, 2)
	test.That(t, conf.SkipInvalid, test.ShouldBeTrue)
	test.That(t, conf.Pattern, test.ShouldEqual, "*.json")
	test.That(t, conf.SettleDelay.Unwrap(), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, conf.Log.Level, test.ShouldEqual, "debug")
	test.That(t, conf.Log.MaxSizeMB, test.ShouldEqual, config.DefaultLogMaxSize)

	parserConf := conf.ParserConfig("a.sf")
	test.That(t, parserConf.Path, test.ShouldEqual, "a.sf")
	test.That(t, parserConf.IntrinsicsDir, test.ShouldEqual, "/opt/tango/calibration")
	test.That(t, parserConf.InvalidDepth, test.ShouldEqual, rimage.InvalidDepthSkip)
	test.That(t, parserConf.FrameIDs.IMU, test.ShouldEqual, "imu_link")

	dec, err := conf.NewDecoder(context.Background(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dec, test.ShouldHaveSameTypeAs, &fake.Decoder{})

	_, err = config.Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRelativeIntrinsics(t *testing.T) {
	logger := logging.NewTestLogger(t)
	in := `{"intrinsics_dir": "calib", "intrinsics": {"depth": "/abs/depth.txt", "narrow": "n.txt"}}`
	conf, err := config.FromReader(context.Background(), "/data/run/tango2bag.json", strings.NewReader(in), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.IntrinsicsDir, test.ShouldEqual, "/data/run/calib")
	test.That(t, conf.Intrinsics.Depth, test.ShouldEqual, "/abs/depth.txt")
	test.That(t, conf.Intrinsics.Narrow, test.ShouldEqual, "/data/run/n.txt")
	test.That(t, conf.Intrinsics.Fisheye, test.ShouldEqual, "")
}

func TestDefault(t *testing.T) {
	conf := config.Default()
	test.That(t, conf.Decoder.Name, test.ShouldEqual, config.DefaultDecoder)
	test.That(t, conf.Topics, test.ShouldResemble, config.DefaultTopics())
	test.That(t, conf.InvalidDepth, test.ShouldEqual, string(rimage.InvalidDepthNaN))
	test.That(t, conf.ChunkThreshold, test.ShouldEqual, ros.DefaultChunkThreshold)
	test.That(t, conf.Pattern, test.ShouldEqual, config.DefaultPattern)
	test.That(t, conf.SettleDelay.Unwrap(), test.ShouldEqual, config.DefaultSettleDelay)
	test.That(t, conf.Validate(""), test.ShouldBeNil)
}

func TestValidateErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name  string
		input string
		field string
	}{
		{"unknown field", `{"intrinsic_dir": "x"}`, "intrinsic_dir"},
		{"unknown decoder", `{"decoder": {"name": "sdk"}}`, "decoder"},
		{"invalid depth policy", `{"invalid_depth": "zero"}`, "invalid_depth"},
		{"negative scale", `{"depth_scale": -0.001}`, "depth_scale"},
		{"negative workers", `{"workers": -1}`, "workers"},
		{"bad pattern", `{"pattern": "[a-"}`, "pattern"},
		{"bad level", `{"log": {"level": "loud"}}`, "log.level"},
		{"relative topic", `{"topics": {"imu": "imu"}}`, "topics.imu"},
		{"duplicate topic", `{"topics": {"depth_image": "/tango/imu"}}`, "topics.imu"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromReader(context.Background(), "", strings.NewReader(tc.input), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.field)
		})
	}
}
