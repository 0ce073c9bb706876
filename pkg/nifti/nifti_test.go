package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prostateview/internal/models"
)

func createTestVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(z*100+y*10+x)-50)
			}
		}
	}
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = 0.5, 0.5, 3
	return vol
}

func TestRoundTrip(t *testing.T) {
	for _, dt := range []Datatype{DTInt16, DTInt32, DTFloat32, DTFloat64, DTInt64} {
		for _, compress := range []bool{false, true} {
			vol := createTestVolume(5, 4, 3)

			var buf bytes.Buffer
			require.NoError(t, Write(&buf, vol, dt, compress))

			got, hdr, err := Read(&buf)
			require.NoError(t, err, "%s compress=%v", dt, compress)
			assert.Equal(t, dt, hdr.Datatype)
			assert.Equal(t, vol.Shape(), got.Shape())
			assert.Equal(t, vol.Data, got.Data, "%s compress=%v", dt, compress)
			assert.InDelta(t, 3.0, got.VoxelSize.Z, 1e-6)
		}
	}
}

func TestUnsignedSaturation(t *testing.T) {
	vol := models.NewVolume(3, 1, 1)
	copy(vol.Data, []float64{-5, 100.4, 300})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, vol, DTUint8, false))
	got, _, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 100, 255}, got.Data)
}

func TestWriteFileCompressesByExtension(t *testing.T) {
	dir := t.TempDir()
	vol := createTestVolume(4, 4, 2)

	gzPath := filepath.Join(dir, "10005_t2w.nii.gz")
	require.NoError(t, WriteFile(gzPath, vol, DTInt16))
	got, _, err := ReadFile(gzPath)
	require.NoError(t, err)
	assert.Equal(t, vol.Data, got.Data)

	plainPath := filepath.Join(dir, "sub", "10005_gland.nii")
	require.NoError(t, WriteFile(plainPath, vol, DTInt16))
	got, _, err = ReadFile(plainPath)
	require.NoError(t, err)
	assert.Equal(t, vol.Data, got.Data)
}

// bigEndianFile hand-builds a big-endian int16 file with intensity scaling
func bigEndianFile(t *testing.T, slope, inter float32, values []int16, dims [8]int16) []byte {
	t.Helper()
	raw := rawHeader{
		SizeofHdr: headerSize,
		Dim:       dims,
		Datatype:  int16(DTInt16),
		Bitpix:    16,
		VoxOffset: defaultVoxOff,
		SclSlope:  slope,
		SclInter:  inter,
	}
	copy(raw.Magic[:], magicSingle)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &raw))
	buf.Write(make([]byte, 4))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, values))
	return buf.Bytes()
}

func TestBigEndianWithScaling(t *testing.T) {
	data := bigEndianFile(t, 2, 10, []int16{1, -2, 3, 4}, [8]int16{3, 2, 2, 1, 1, 1, 1, 1})

	vol, hdr, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, hdr.ByteOrder)
	assert.Equal(t, []float64{12, 6, 16, 18}, vol.Data)
	assert.Equal(t, models.Shape{Depth: 1, Height: 2, Width: 2}, vol.Shape())
}

func TestZeroSlopeMeansUnscaled(t *testing.T) {
	data := bigEndianFile(t, 0, 10, []int16{7, 8}, [8]int16{2, 2, 1, 1, 1, 1, 1, 1})

	vol, _, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8}, vol.Data)
}

func TestRejectsTimeSeries(t *testing.T) {
	data := bigEndianFile(t, 1, 0, make([]int16, 8), [8]int16{4, 2, 2, 1, 2, 1, 1, 1})

	_, _, err := Read(bytes.NewReader(data))
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestRejectsOversizedExtent(t *testing.T) {
	// header claims ~3.5e13 voxels but carries four
	data := bigEndianFile(t, 1, 0, make([]int16, 4), [8]int16{3, 32767, 32767, 32767, 1, 1, 1, 1})

	_, _, err := Read(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidHeader))
	assert.Contains(t, err.Error(), "32767x32767x32767")
}

func TestRejectsGarbage(t *testing.T) {
	_, _, err := Read(bytes.NewReader([]byte("definitely not a nifti header")))
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	junk := make([]byte, 400)
	binary.LittleEndian.PutUint32(junk, 348)
	copy(junk[344:], "xyz\x00")
	_, _, err = Read(bytes.NewReader(junk))
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	copy(junk[344:], magicPaired)
	_, _, err = Read(bytes.NewReader(junk))
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestTruncatedData(t *testing.T) {
	vol := createTestVolume(4, 4, 4)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, vol, DTFloat32, false))

	truncated := buf.Bytes()[:buf.Len()-10]
	_, _, err := Read(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestHeaderLayout(t *testing.T) {
	assert.Equal(t, headerSize, binary.Size(rawHeader{}))
}

func TestDatatypeSize(t *testing.T) {
	assert.Equal(t, 2, DTInt16.Size())
	assert.Equal(t, 8, DTFloat64.Size())
	assert.Equal(t, 0, Datatype(9999).Size())
	assert.Equal(t, "float32", DTFloat32.String())
}
