// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz), the format the T2-weighted scans and gland masks are stored in.
//
// Voxels are returned in file order (x fastest, then y, then z), which is
// the (z, y, x) array layout used throughout the pipeline.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"prostateview/internal/models"
)

const (
	headerSize     = 348
	defaultVoxOff  = 352
	magicSingle    = "n+1\x00"
	magicPaired    = "ni1\x00"
	gzipMagicFirst = 0x1f
	gzipMagicNext  = 0x8b

	// maxVoxels bounds the allocation a header can request
	maxVoxels = 1 << 28
)

var (
	// ErrInvalidHeader is returned when the stream does not start with a NIfTI-1 header
	ErrInvalidHeader = errors.New("invalid NIfTI-1 header")

	// ErrUnsupported is returned for valid files this reader does not handle
	ErrUnsupported = errors.New("unsupported NIfTI-1 file")
)

// Datatype is the NIfTI-1 datatype code
type Datatype int16

const (
	DTUint8   Datatype = 2
	DTInt16   Datatype = 4
	DTInt32   Datatype = 8
	DTFloat32 Datatype = 16
	DTFloat64 Datatype = 64
	DTInt8    Datatype = 256
	DTUint16  Datatype = 512
	DTUint32  Datatype = 768
	DTInt64   Datatype = 1024
	DTUint64  Datatype = 1280
)

// Size returns the number of bytes per voxel, or 0 for unsupported codes
func (d Datatype) Size() int {
	switch d {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTInt64, DTUint64, DTFloat64:
		return 8
	default:
		return 0
	}
}

func (d Datatype) String() string {
	switch d {
	case DTUint8:
		return "uint8"
	case DTInt8:
		return "int8"
	case DTInt16:
		return "int16"
	case DTUint16:
		return "uint16"
	case DTInt32:
		return "int32"
	case DTUint32:
		return "uint32"
	case DTInt64:
		return "int64"
	case DTUint64:
		return "uint64"
	case DTFloat32:
		return "float32"
	case DTFloat64:
		return "float64"
	default:
		return fmt.Sprintf("datatype(%d)", int16(d))
	}
}

// rawHeader is the on-disk layout of the 348-byte NIfTI-1 header
type rawHeader struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Header exposes the fields of a NIfTI-1 header the pipeline cares about
type Header struct {
	// Dim holds the number of dimensions followed by their extents
	Dim [8]int16

	Datatype Datatype

	// PixDim holds the voxel spacing; PixDim[1..3] are x, y, z in mm
	PixDim [8]float32

	SclSlope float32
	SclInter float32

	Description string

	ByteOrder binary.ByteOrder
}

// ReadFile loads a .nii or .nii.gz file
func ReadFile(path string) (*models.Volume, *Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	vol, hdr, err := Read(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vol, hdr, nil
}

// Read decodes a NIfTI-1 volume from r. Gzip compression is detected from
// the stream's magic bytes.
func Read(r io.Reader) (*models.Volume, *Header, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == gzipMagicFirst && magic[1] == gzipMagicNext {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	var order binary.ByteOrder
	switch {
	case int32(binary.LittleEndian.Uint32(buf)) == headerSize:
		order = binary.LittleEndian
	case int32(binary.BigEndian.Uint32(buf)) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: sizeof_hdr is not %d", ErrInvalidHeader, headerSize)
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf), order, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	switch string(raw.Magic[:]) {
	case magicSingle:
	case magicPaired:
		return nil, nil, fmt.Errorf("%w: paired .hdr/.img files", ErrUnsupported)
	default:
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, raw.Magic[:])
	}

	hdr := &Header{
		Dim:         raw.Dim,
		Datatype:    Datatype(raw.Datatype),
		PixDim:      raw.Pixdim,
		SclSlope:    raw.SclSlope,
		SclInter:    raw.SclInter,
		Description: strings.TrimRight(string(raw.Descrip[:]), "\x00 "),
		ByteOrder:   order,
	}

	width, height, depth, err := spatialDims(raw.Dim)
	if err != nil {
		return nil, nil, err
	}
	size := hdr.Datatype.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("%w: datatype %s", ErrUnsupported, hdr.Datatype)
	}

	count := int64(width) * int64(height) * int64(depth)
	if count > maxVoxels {
		return nil, nil, fmt.Errorf("%w: %dx%dx%d exceeds %d voxels", ErrInvalidHeader, width, height, depth, maxVoxels)
	}

	// Skip extensions up to the start of the voxel data
	offset := int64(raw.VoxOffset)
	if offset < headerSize {
		offset = defaultVoxOff
	}
	if _, err := io.CopyN(io.Discard, br, offset-headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to seek to voxel data: %w", err)
	}

	data := make([]byte, count*int64(size))
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, nil, fmt.Errorf("failed to read %d voxels: %w", count, err)
	}

	vol := models.NewVolume(width, height, depth)
	decodeSamples(vol.Data, data, hdr.Datatype, order)

	if slope := float64(raw.SclSlope); slope != 0 && !math.IsNaN(slope) && (slope != 1 || raw.SclInter != 0) {
		inter := float64(raw.SclInter)
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	vol.VoxelSize.X = float64(raw.Pixdim[1])
	vol.VoxelSize.Y = float64(raw.Pixdim[2])
	vol.VoxelSize.Z = float64(raw.Pixdim[3])

	return vol, hdr, nil
}

// spatialDims extracts (x, y, z) extents; 2D images get a depth of one and
// dimensions above the third must be singleton
func spatialDims(dim [8]int16) (int, int, int, error) {
	ndim := int(dim[0])
	if ndim < 1 || ndim > 7 {
		return 0, 0, 0, fmt.Errorf("%w: dim[0]=%d", ErrInvalidHeader, ndim)
	}
	extent := func(i int) int {
		if i > ndim {
			return 1
		}
		return int(dim[i])
	}
	for i := 4; i <= ndim; i++ {
		if dim[i] > 1 {
			return 0, 0, 0, fmt.Errorf("%w: %d-D volume with dim[%d]=%d", ErrUnsupported, ndim, i, dim[i])
		}
	}
	w, h, d := extent(1), extent(2), extent(3)
	if w <= 0 || h <= 0 || d <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: non-positive extent %dx%dx%d", ErrInvalidHeader, w, h, d)
	}
	return w, h, d, nil
}

func decodeSamples(dst []float64, src []byte, dt Datatype, order binary.ByteOrder) {
	size := dt.Size()
	for i := range dst {
		b := src[i*size : (i+1)*size]
		switch dt {
		case DTUint8:
			dst[i] = float64(b[0])
		case DTInt8:
			dst[i] = float64(int8(b[0]))
		case DTInt16:
			dst[i] = float64(int16(order.Uint16(b)))
		case DTUint16:
			dst[i] = float64(order.Uint16(b))
		case DTInt32:
			dst[i] = float64(int32(order.Uint32(b)))
		case DTUint32:
			dst[i] = float64(order.Uint32(b))
		case DTInt64:
			dst[i] = float64(int64(order.Uint64(b)))
		case DTUint64:
			dst[i] = float64(order.Uint64(b))
		case DTFloat32:
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case DTFloat64:
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
}
