package labelio

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
)

// Format identifies an on-disk label encoding.
type Format string

const (
	FormatLBL  Format = "lbl"
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lbl":
		return FormatLBL, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".png":
		return FormatPNG, nil
	}
	return "", stitcherr.New(stitcherr.ErrCodeInvalidFormat, "unsupported label file extension %q", filepath.Ext(path))
}

// Ext returns the canonical file extension, including the dot.
func (f Format) Ext() string {
	if f == FormatTIFF {
		return ".tif"
	}
	return "." + string(f)
}

// Read loads a label map from path. A missing file yields an error that
// satisfies errors.Is(err, fs.ErrNotExist).
func Read(path string) (*models.LabelImage, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatTIFF:
		return readTIFF(path)
	case FormatPNG:
		img, err := ReadImage(path)
		if err != nil {
			return nil, err
		}
		return FromImage(img)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := DecodeLBL(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// readTIFF decodes 32-bit label TIFFs itself and leaves narrower ones to
// golang.org/x/image/tiff.
func readTIFF(path string) (*models.LabelImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	layout, err := parseTIFF(f)
	if err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	if layout.bits == 32 {
		m, err := layout.decode32(f)
		if err != nil {
			return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "decode %s", path)
		}
		return m, nil
	}

	img, err := tiff.Decode(io.NewSectionReader(f, 0, math.MaxInt64))
	if err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	return FromImage(img)
}

// ReadImage decodes a TIFF or PNG raster as is, without converting it to
// labels.
func ReadImage(path string) (image.Image, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if format == FormatLBL {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "%s is a label map, not a raster", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	if format == FormatTIFF {
		img, err = tiff.Decode(bufio.NewReader(f))
	} else {
		img, err = png.Decode(bufio.NewReader(f))
	}
	if err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	return img, nil
}

// Write stores m at path, creating parent directories. The file is written
// to a temporary name first and renamed into place so readers never see a
// partial map.
func Write(path string, m *models.LabelImage) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		return Encode(w, format, m)
	})
}

// WriteImage stores a raster as TIFF or PNG, the same way Write does.
func WriteImage(path string, img image.Image) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		switch format {
		case FormatTIFF:
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		case FormatPNG:
			return png.Encode(w, img)
		}
		return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "cannot write a raster as %s", format)
	})
}

func writeAtomic(path string, encode func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := encode(w); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Encode writes m to w in the given format.
func Encode(w io.Writer, format Format, m *models.LabelImage) error {
	switch format {
	case FormatLBL:
		return EncodeLBL(w, m)
	case FormatTIFF:
		img, err := ToGray16(m)
		if err != nil {
			return err
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatPNG:
		img, err := ToGray16(m)
		if err != nil {
			return err
		}
		return png.Encode(w, img)
	}
	return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "unknown format %q", format)
}

// ReadDimensions returns the width and height of an image file by reading
// only its header.
func ReadDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	format, err := FormatOf(path)
	if err != nil {
		return 0, 0, err
	}

	var cfg image.Config
	switch format {
	case FormatTIFF:
		var layout *tiffLayout
		if layout, err = parseTIFF(f); err == nil {
			cfg.Width, cfg.Height = layout.width, layout.height
		}
	case FormatPNG:
		cfg, err = png.DecodeConfig(bufio.NewReader(f))
	case FormatLBL:
		var hdr [lblHeaderLen]byte
		if _, err = io.ReadFull(f, hdr[:]); err == nil {
			cfg.Width, cfg.Height, err = parseLBLHeader(hdr[:])
		}
	}
	if err != nil {
		return 0, 0, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "read dimensions of %s", path)
	}
	return cfg.Width, cfg.Height, nil
}

// FromImage converts a grayscale image to labels, one id per gray level.
// The result is re-based so that its origin is (0, 0).
func FromImage(img image.Image) (*models.LabelImage, error) {
	b := img.Bounds()
	m := models.NewLabelImage(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Pix[y*m.Width+x] = uint32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Pix[y*m.Width+x] = uint32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "label images must be grayscale, got %T", img)
	}
	return m, nil
}

// ToGray16 converts labels to a 16-bit grayscale image. It fails when an id
// does not fit in 16 bits.
func ToGray16(m *models.LabelImage) (*image.Gray16, error) {
	if hi := m.Max(); hi > math.MaxUint16 {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "max id %d does not fit in a 16-bit image", hi)
	}
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(m.Pix[y*m.Width+x])})
		}
	}
	return img, nil
}
