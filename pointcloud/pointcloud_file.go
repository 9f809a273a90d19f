package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// pcdPointSize is the size of one binary x y z record.
const pcdPointSize = 12

// ToPCD writes the cloud as a PCD v0.7 file with float32 x y z fields. Organized clouds keep
// their WIDTH and HEIGHT, and invalid points are written as nan.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown PCD type %d", outputType)
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		cloud.Width(), cloud.Height(), cloud.Size(), data); err != nil {
		return err
	}
	if err := writePCDData(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

// WritePCDFile writes the cloud to path in the given PCD format.
func WritePCDFile(cloud PointCloud, path string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToPCD(cloud, f, outputType)
}

func formatPCDFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(float64(float32(v)), 'f', -1, 32)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	var err error
	buf := make([]byte, pcdPointSize)
	cloud.Iterate(0, 0, func(_ int, pos r3.Vector) bool {
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			_, err = out.Write(buf)
		case PCDAscii:
			_, err = fmt.Fprintf(out, "%s %s %s\n", formatPCDFloat(pos.X), formatPCDFloat(pos.Y), formatPCDFloat(pos.Z))
		case PCDCompressed:
			err = errors.New("compressed PCD not yet implemented")
		}
		return err == nil
	})
	return err
}

type pcdHeader struct {
	size      []uint64
	type_     []string
	count     []uint64
	width     uint64
	height    uint64
	origin    r3.Vector
	viewpoint quat.Number
	points    uint64
	data      PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

// pcdFieldCount is the number of fields of the x y z layout.
const pcdFieldCount = 3

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if strings.Join(tokens, " ") != "x y z" {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != pcdFieldCount {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil || header.size[i] != 4 {
				return errors.Errorf("invalid SIZE field %s", token)
			}
		}
	case "TYPE":
		if len(tokens) != pcdFieldCount {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.type_ = tokens
		for _, token := range tokens {
			if token != "F" {
				return errors.Errorf("unsupported TYPE field %s", token)
			}
		}
	case "COUNT":
		if len(tokens) != pcdFieldCount {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil || header.count[i] != 1 {
				return errors.Errorf("invalid COUNT field %s", token)
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
		header.origin = r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]}
		header.viewpoint = quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]}
		if math.Abs(quat.Abs(header.viewpoint)-1) > 1e-6 {
			return errors.Errorf("VIEWPOINT orientation %v is not a unit quaternion", header.viewpoint)
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD file with float x y z fields. A HEIGHT greater than one yields an
// *Organized cloud, otherwise a *BasicPointCloud.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}

	var read func(i int) (r3.Vector, error)
	switch header.data {
	case PCDAscii:
		read = func(i int) (r3.Vector, error) { return readPCDAsciiPoint(in, i) }
	case PCDBinary:
		buf := make([]byte, pcdPointSize)
		read = func(i int) (r3.Vector, error) {
			if _, err := io.ReadFull(in, buf); err != nil {
				return r3.Vector{}, errors.Wrapf(err, "error reading point %d", i)
			}
			return r3.Vector{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))),
			}, nil
		}
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}

	if header.height > 1 {
		width := int(header.width)
		pc := NewOrganized(width, int(header.height))
		for i := 0; i < int(header.points); i++ {
			p, err := read(i)
			if err != nil {
				return nil, err
			}
			if err := pc.Set(i%width, i/width, p); err != nil {
				return nil, err
			}
		}
		return pc, nil
	}
	pc := NewWithPrealloc(int(header.points))
	for i := 0; i < int(header.points); i++ {
		p, err := read(i)
		if err != nil {
			return nil, err
		}
		pc.Append(p)
	}
	return pc, nil
}

func readPCDAsciiPoint(in *bufio.Reader, i int) (r3.Vector, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return r3.Vector{}, errors.Wrapf(err, "error reading point %d", i)
	}
	tokens := strings.Fields(line)
	if len(tokens) != pcdFieldCount {
		return r3.Vector{}, errors.Errorf("unexpected number of fields in point %d", i)
	}
	var point [pcdFieldCount]float64
	for j, token := range tokens {
		point[j], err = strconv.ParseFloat(token, 32)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "invalid point %d field %s", i, token)
		}
	}
	return r3.Vector{X: point[0], Y: point[1], Z: point[2]}, nil
}
