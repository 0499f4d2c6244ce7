package labelio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
)

// buildTIFF32 lays out a one-strip, one-sample 32-bit TIFF the way
// tifffile writes int32 label planes.
func buildTIFF32(t *testing.T, order binary.ByteOrder, width, height int, samples []uint32, sampleFormat, compression uint16) []byte {
	t.Helper()

	strip := make([]byte, 4*len(samples))
	for i, v := range samples {
		order.PutUint32(strip[4*i:], v)
	}
	if compression == compressionDeflate {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, err := zw.Write(strip)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		strip = buf.Bytes()
	}

	type entry struct {
		tag, typ uint16
		value    uint32
	}
	const dataOffset = 8 + 2 + 10*12 + 4
	entries := []entry{
		{tagImageWidth, 4, uint32(width)},
		{tagImageLength, 4, uint32(height)},
		{tagBitsPerSample, 3, 32},
		{tagCompression, 3, uint32(compression)},
		{262, 3, 1}, // photometric: min-is-black
		{tagStripOffsets, 4, dataOffset},
		{tagSamplesPerPixel, 3, 1},
		{tagRowsPerStrip, 4, uint32(height)},
		{tagStripByteCounts, 4, uint32(len(strip))},
		{tagSampleFormat, 3, uint32(sampleFormat)},
	}

	out := make([]byte, dataOffset, dataOffset+len(strip))
	if order == binary.LittleEndian {
		copy(out, "II")
	} else {
		copy(out, "MM")
	}
	order.PutUint16(out[2:], 42)
	order.PutUint32(out[4:], 8)
	order.PutUint16(out[8:], uint16(len(entries)))
	for i, e := range entries {
		p := out[10+12*i:]
		order.PutUint16(p, e.tag)
		order.PutUint16(p[2:], e.typ)
		order.PutUint32(p[4:], 1)
		if e.typ == 3 {
			order.PutUint16(p[8:], uint16(e.value))
		} else {
			order.PutUint32(p[8:], e.value)
		}
	}
	return append(out, strip...)
}

func TestReadTIFF32(t *testing.T) {
	ids := []uint32{0, 1, 70000, 0, 5, 5, 0, 4_000_000}
	floats := make([]uint32, len(ids))
	for i, v := range ids {
		floats[i] = math.Float32bits(float32(v))
	}

	tests := []struct {
		name         string
		order        binary.ByteOrder
		samples      []uint32
		sampleFormat uint16
		compression  uint16
	}{
		{"little-endian uint32", binary.LittleEndian, ids, sampleUint, compressionNone},
		{"big-endian int32", binary.BigEndian, ids, sampleInt, compressionNone},
		{"deflate int32", binary.LittleEndian, ids, sampleInt, compressionDeflate},
		{"float32", binary.LittleEndian, floats, sampleFloat, compressionNone},
	}

	want := models.NewLabelImage(4, 2)
	copy(want.Pix, ids)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "labels.tif")
			data := buildTIFF32(t, tt.order, 4, 2, tt.samples, tt.sampleFormat, tt.compression)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			got, err := Read(path)
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.Equal(t, uint32(70000), got.At(2, 0))

			w, h, err := ReadDimensions(path)
			require.NoError(t, err)
			require.Equal(t, [2]int{4, 2}, [2]int{w, h})
		})
	}
}

func TestReadTIFF32RejectsNegativeIDs(t *testing.T) {
	neg := int32(-3)
	samples := []uint32{0, 1, 2, uint32(neg)}
	path := filepath.Join(t.TempDir(), "labels.tif")
	require.NoError(t, os.WriteFile(path, buildTIFF32(t, binary.LittleEndian, 2, 2, samples, sampleInt, compressionNone), 0o644))

	_, err := Read(path)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat), "got %v", err)
}

func TestReadTIFFRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.tif")
	require.NoError(t, os.WriteFile(path, []byte("II*\x00not really a tiff"), 0o644))

	_, err := Read(path)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat), "got %v", err)
	_, _, err = ReadDimensions(path)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat), "got %v", err)
}
