package labelio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
)

// createTestLabels creates a label image with a few rectangular objects
func createTestLabels(width, height int, maxID uint32) *models.LabelImage {
	m := models.NewLabelImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/4+y/4)%3 == 0 {
				m.Set(x, y, uint32(1+(x/4)*7+(y/4)*13)%maxID+1)
			}
		}
	}
	return m
}

func TestLBLRoundTripKeeps32BitIDs(t *testing.T) {
	m := createTestLabels(37, 23, 1<<30)
	m.Set(0, 0, 4_000_000_000)

	var buf bytes.Buffer
	require.NoError(t, EncodeLBL(&buf, m))
	got, err := DecodeLBL(&buf)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestDecodeLBLRejectsGarbage(t *testing.T) {
	_, err := DecodeLBL(bytes.NewReader([]byte("definitely not a label map")))
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat))

	_, err = DecodeLBL(bytes.NewReader([]byte("TS")))
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat))
}

func TestDecodeLBLRejectsOversizedHeader(t *testing.T) {
	hdr := make([]byte, lblHeaderLen)
	copy(hdr, lblMagic)
	binary.LittleEndian.PutUint32(hdr[len(lblMagic):], 1<<20)
	binary.LittleEndian.PutUint32(hdr[len(lblMagic)+4:], 1<<20)

	_, err := DecodeLBL(bytes.NewReader(append(hdr, "payload"...)))
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat), "got %v", err)

	path := filepath.Join(t.TempDir(), "huge.lbl")
	require.NoError(t, os.WriteFile(path, hdr, 0o644))
	_, _, err = ReadDimensions(path)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat), "got %v", err)
}

func TestWriteReadEachFormat(t *testing.T) {
	dir := t.TempDir()
	m := createTestLabels(64, 48, 60000)

	for _, name := range []string{"a.lbl", "b.tif", "c.tiff", "d.png"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "sub", name)
			require.NoError(t, Write(path, m))

			got, err := Read(path)
			require.NoError(t, err)
			require.Equal(t, m, got)

			w, h, err := ReadDimensions(path)
			require.NoError(t, err)
			require.Equal(t, [2]int{64, 48}, [2]int{w, h})
		})
	}
}

func TestGrayFormatsRefuseWideIDs(t *testing.T) {
	m := models.NewLabelImage(4, 4)
	m.Set(1, 1, 70000)

	path := filepath.Join(t.TempDir(), "wide.tif")
	err := Write(path, m)
	require.Error(t, err)
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat))

	// nothing half-written is left behind
	_, statErr := os.Stat(path)
	require.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.lbl"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("x/y/tile_0_90.TIF")
	require.NoError(t, err)
	require.Equal(t, FormatTIFF, f)
	require.Equal(t, ".tif", f.Ext())

	_, err = FormatOf("tile.jpg")
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat))
}

func TestWriteImageKeepsRaster(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 8, 6))
	img.SetGray16(3, 2, color.Gray16{Y: 1234})
	sub := img.SubImage(image.Rect(2, 1, 8, 6))

	path := filepath.Join(t.TempDir(), "tiles", "c_2_1.tif")
	require.NoError(t, WriteImage(path, sub))

	got, err := ReadImage(path)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 6, 5), got.Bounds())
	r, _, _, _ := got.At(1, 1).RGBA()
	require.Equal(t, uint32(1234), r)

	_, err = ReadImage(filepath.Join(t.TempDir(), "m.lbl"))
	require.True(t, stitcherr.Is(err, stitcherr.ErrCodeInvalidFormat))
}
