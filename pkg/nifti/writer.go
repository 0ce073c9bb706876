package nifti

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"prostateview/internal/models"
)

// Write encodes vol as a little-endian single-file NIfTI-1 stream. Samples
// are converted to dt with rounding and saturation for integer types.
func Write(w io.Writer, vol *models.Volume, dt Datatype, compress bool) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	size := dt.Size()
	if size == 0 {
		return fmt.Errorf("%w: datatype %s", ErrUnsupported, dt)
	}

	out := w
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		out = zw
	}

	raw := rawHeader{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  int16(dt),
		Bitpix:    int16(size * 8),
		VoxOffset: defaultVoxOff,
		SclSlope:  1,
		XYZTUnits: 2, // mm
	}
	raw.Dim = [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1}
	raw.Pixdim = [8]float32{1, spacing(vol.VoxelSize.X), spacing(vol.VoxelSize.Y), spacing(vol.VoxelSize.Z), 1, 1, 1, 1}
	copy(raw.Magic[:], magicSingle)

	if err := binary.Write(out, binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	// empty extension block
	if _, err := out.Write(make([]byte, defaultVoxOff-headerSize)); err != nil {
		return fmt.Errorf("failed to write extension flag: %w", err)
	}

	data := make([]byte, len(vol.Data)*size)
	encodeSamples(data, vol.Data, dt)
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write voxel data: %w", err)
	}

	if zw != nil {
		return zw.Close()
	}
	return nil
}

// WriteFile writes vol to path, compressing when the name ends in .gz
func WriteFile(path string, vol *models.Volume, dt Datatype) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, vol, dt, strings.HasSuffix(path, ".gz")); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func spacing(v float64) float32 {
	if v <= 0 {
		return 1
	}
	return float32(v)
}

func encodeSamples(dst []byte, src []float64, dt Datatype) {
	le := binary.LittleEndian
	size := dt.Size()
	for i, v := range src {
		b := dst[i*size : (i+1)*size]
		switch dt {
		case DTUint8:
			b[0] = uint8(clampRound(v, 0, math.MaxUint8))
		case DTInt8:
			b[0] = byte(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
		case DTInt16:
			le.PutUint16(b, uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		case DTUint16:
			le.PutUint16(b, uint16(clampRound(v, 0, math.MaxUint16)))
		case DTInt32:
			le.PutUint32(b, uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		case DTUint32:
			le.PutUint32(b, uint32(clampRound(v, 0, math.MaxUint32)))
		case DTInt64:
			le.PutUint64(b, uint64(int64(math.Round(v))))
		case DTUint64:
			le.PutUint64(b, uint64(math.Max(0, math.Round(v))))
		case DTFloat32:
			le.PutUint32(b, math.Float32bits(float32(v)))
		case DTFloat64:
			le.PutUint64(b, math.Float64bits(v))
		}
	}
}

func clampRound(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(v)))
}
