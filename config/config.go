// Package config defines the tango2bag run configuration.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
)

// Defaults applied by Validate.
const (
	DefaultDecoder     = "fake"
	DefaultPattern     = "*.sf"
	DefaultSettleDelay = 2 * time.Second
	DefaultLogMaxSize  = 100
)

// Topics are the bag topics of each stream. An empty DepthImage disables the depth image stream.
type Topics struct {
	SmallImage      string `json:"small_image,omitempty"`
	BigImage        string `json:"big_image,omitempty"`
	PointCloud      string `json:"point_cloud,omitempty"`
	DepthImage      string `json:"depth_image,omitempty"`
	Imu             string `json:"imu,omitempty"`
	SmallCameraInfo string `json:"small_camera_info,omitempty"`
	BigCameraInfo   string `json:"big_camera_info,omitempty"`
}

// DefaultTopics returns the topics used for unset streams.
func DefaultTopics() Topics {
	return Topics{
		SmallImage:      "/tango/fisheye/image_raw",
		BigImage:        "/tango/color/image_raw",
		PointCloud:      "/tango/depth/points",
		Imu:             "/tango/imu",
		SmallCameraInfo: "/tango/fisheye/camera_info",
		BigCameraInfo:   "/tango/color/camera_info",
	}
}

// IntrinsicsPaths overrides the intrinsics file of single sensors.
type IntrinsicsPaths struct {
	Depth   string `json:"depth,omitempty"`
	Fisheye string `json:"fisheye,omitempty"`
	Narrow  string `json:"narrow,omitempty"`
}

// Decoder selects a registered super frame decoder.
type Decoder struct {
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Log configures the optional log file.
type Log struct {
	Level      string `json:"level,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Config is the configuration of a conversion run.
type Config struct {
	ConfigFilePath string `json:"-"`

	IntrinsicsDir string              `json:"intrinsics_dir,omitempty"`
	Intrinsics    IntrinsicsPaths     `json:"intrinsics,omitempty"`
	FrameIDs      superframe.FrameIDs `json:"frame_ids,omitempty"`
	Topics        Topics              `json:"topics,omitempty"`

	InvalidDepth string  `json:"invalid_depth,omitempty"`
	DepthScale   float64 `json:"depth_scale,omitempty"`

	Decoder Decoder `json:"decoder,omitempty"`

	// Workers bounds how many files are decoded at once; zero means one per CPU.
	Workers     int  `json:"workers,omitempty"`
	SkipInvalid bool `json:"skip_invalid,omitempty"`

	ChunkThreshold int `json:"chunk_threshold,omitempty"`

	Pattern     string           `json:"pattern,omitempty"`
	SettleDelay goutils.Duration `json:"settle_delay,omitempty"`

	Log Log `json:"log,omitempty"`
}

// Default returns a Config with every default set.
func Default() *Config {
	conf := &Config{}
	//nolint:errcheck
	conf.Validate("")
	return conf
}

// Read reads a config from the given file. Environment variables in the file are expanded.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(ctx context.Context, originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf := Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := conf.Validate(""); err != nil {
		return nil, errors.Wrapf(err, "failed to process Config")
	}
	logger.Debugw("read config", "path", originalPath, "decoder", conf.Decoder.Name)
	return &conf, nil
}

func fieldPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Validate checks the config and fills in defaults. Relative intrinsics paths are resolved
// against the directory of the config file.
func (c *Config) Validate(path string) error {
	if c.Decoder.Name == "" {
		c.Decoder.Name = DefaultDecoder
	}
	policy, err := rimage.ParseInvalidDepthPolicy(c.InvalidDepth)
	if err != nil {
		return goutils.NewConfigValidationError(fieldPath(path, "invalid_depth"), err)
	}
	c.InvalidDepth = string(policy)
	if c.DepthScale < 0 {
		return goutils.NewConfigValidationError(fieldPath(path, "depth_scale"), errors.New("must be positive"))
	}
	if c.DepthScale == 0 {
		c.DepthScale = rimage.DefaultDepthScale
	}
	if c.Workers < 0 {
		return goutils.NewConfigValidationError(fieldPath(path, "workers"), errors.New("cannot be negative"))
	}
	if c.ChunkThreshold < 0 {
		return goutils.NewConfigValidationError(fieldPath(path, "chunk_threshold"), errors.New("cannot be negative"))
	}
	if c.ChunkThreshold == 0 {
		c.ChunkThreshold = ros.DefaultChunkThreshold
	}

	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		return goutils.NewConfigValidationError(fieldPath(path, "pattern"), err)
	}
	if c.SettleDelay < 0 {
		return goutils.NewConfigValidationError(fieldPath(path, "settle_delay"), errors.New("cannot be negative"))
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = goutils.Duration(DefaultSettleDelay)
	}

	if c.Log.Level != "" {
		if _, err := logging.LevelFromString(c.Log.Level); err != nil {
			return goutils.NewConfigValidationError(fieldPath(path, "log.level"), err)
		}
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSize
	}

	defaults := DefaultTopics()
	for _, topic := range []struct {
		value *string
		def   string
	}{
		{&c.Topics.SmallImage, defaults.SmallImage},
		{&c.Topics.BigImage, defaults.BigImage},
		{&c.Topics.PointCloud, defaults.PointCloud},
		{&c.Topics.Imu, defaults.Imu},
		{&c.Topics.SmallCameraInfo, defaults.SmallCameraInfo},
		{&c.Topics.BigCameraInfo, defaults.BigCameraInfo},
	} {
		if *topic.value == "" {
			*topic.value = topic.def
		}
	}
	if err := c.checkTopics(fieldPath(path, "topics")); err != nil {
		return err
	}

	if c.ConfigFilePath != "" {
		base := filepath.Dir(c.ConfigFilePath)
		for _, p := range []*string{&c.IntrinsicsDir, &c.Intrinsics.Depth, &c.Intrinsics.Fisheye, &c.Intrinsics.Narrow} {
			if *p != "" && !filepath.IsAbs(*p) {
				*p = filepath.Join(base, *p)
			}
		}
	}

	if superframe.DecoderLookup(c.Decoder.Name) == nil {
		return goutils.NewConfigValidationError(fieldPath(path, "decoder"),
			errors.Errorf("unknown decoder %q, registered decoders are %v", c.Decoder.Name, superframe.RegisteredDecoders()))
	}
	return nil
}

func (c *Config) checkTopics(path string) error {
	seen := map[string]string{}
	for _, topic := range []struct{ field, name string }{
		{"small_image", c.Topics.SmallImage},
		{"big_image", c.Topics.BigImage},
		{"point_cloud", c.Topics.PointCloud},
		{"depth_image", c.Topics.DepthImage},
		{"imu", c.Topics.Imu},
		{"small_camera_info", c.Topics.SmallCameraInfo},
		{"big_camera_info", c.Topics.BigCameraInfo},
	} {
		if topic.name == "" {
			continue
		}
		if topic.name[0] != '/' {
			return goutils.NewConfigValidationError(fieldPath(path, topic.field),
				errors.Errorf("topic %q must start with /", topic.name))
		}
		if other, ok := seen[topic.name]; ok {
			return goutils.NewConfigValidationError(fieldPath(path, topic.field),
				errors.Errorf("topic %q is also used by %s", topic.name, other))
		}
		seen[topic.name] = topic.field
	}
	return nil
}

// ParserConfig returns the parser configuration for one super frame file.
func (c *Config) ParserConfig(path string) superframe.Config {
	return superframe.Config{
		Path:              path,
		IntrinsicsDir:     c.IntrinsicsDir,
		DepthIntrinsics:   c.Intrinsics.Depth,
		FisheyeIntrinsics: c.Intrinsics.Fisheye,
		NarrowIntrinsics:  c.Intrinsics.Narrow,
		FrameIDs:          c.FrameIDs,
		InvalidDepth:      rimage.InvalidDepthPolicy(c.InvalidDepth),
		DepthScale:        c.DepthScale,
	}
}

// NewDecoder creates the configured decoder.
func (c *Config) NewDecoder(ctx context.Context, logger logging.Logger) (superframe.Decoder, error) {
	return superframe.NewDecoder(ctx, c.Decoder.Name, c.Decoder.Attributes, logger)
}
