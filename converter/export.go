package converter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/pointcloud"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/rimage"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/superframe"
)

// Export file names, without the image extension.
const (
	SmallImageName = "small"
	BigImageName   = "big"
	DepthImageName = "depth"
	PointCloudFile = "depth.pcd"
	ImuFile        = "imu.json"
	ManifestFile   = "manifest.json"
)

// Manifest describes an exported frame.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Stamp      ros.Time  `json:"stamp"`
	ExportedAt time.Time `json:"exported_at"`
	Files      []string  `json:"files"`
}

// Export writes the frame of p to dir as small.<format>, big.<format>, depth.png, depth.pcd
// and imu.json, plus a manifest.json listing them.
func Export(dir string, p *superframe.Parser, format rimage.ImageFormat, pcdType pointcloud.PCDType) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	manifest := &Manifest{
		RunID:      uuid.NewString(),
		Source:     p.Path(),
		Stamp:      p.Stamp(),
		ExportedAt: time.Now().UTC(),
	}

	for _, img := range []struct {
		name   string
		format rimage.ImageFormat
		msg    *ros.Image
	}{
		{SmallImageName, format, p.SmallImage()},
		{BigImageName, format, p.BigImage()},
		// 16 bit depth only survives png
		{DepthImageName, rimage.FormatPNG, p.DepthImage()},
	} {
		decoded, err := img.msg.ToImage()
		if err != nil {
			return nil, errors.Wrapf(err, "error converting %s image", img.name)
		}
		name := img.name + "." + string(img.format)
		if err := rimage.WriteImageToFile(filepath.Join(dir, name), decoded); err != nil {
			return nil, errors.Wrapf(err, "error writing %s", name)
		}
		manifest.Files = append(manifest.Files, name)
	}

	cloud, err := p.PointCloud().ToPointCloud()
	if err != nil {
		return nil, err
	}
	if err := pointcloud.WritePCDFile(cloud, filepath.Join(dir, PointCloudFile), pcdType); err != nil {
		return nil, errors.Wrapf(err, "error writing %s", PointCloudFile)
	}
	manifest.Files = append(manifest.Files, PointCloudFile)

	if err := writeJSON(filepath.Join(dir, ImuFile), p.Imu()); err != nil {
		return nil, err
	}
	manifest.Files = append(manifest.Files, ImuFile)

	if err := writeJSON(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeJSON(path string, v interface{}) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrapf(enc.Encode(v), "error writing %q", path)
}
