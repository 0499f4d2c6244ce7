package labelio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
)

// Labelers commonly write ids as 32-bit int or uint planes, which
// golang.org/x/image/tiff does not decode. tiffLayout reads the first IFD
// directly so those files, and the headers of any TIFF, can be read.

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagSampleFormat    = 339
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// maxTIFFValues bounds the number of values read for one IFD entry.
const maxTIFFValues = 1 << 24

type tiffLayout struct {
	order         binary.ByteOrder
	width, height int
	bits, samples int
	compression   int
	predictor     int
	sampleFormat  int
	rowsPerStrip  int
	tiled         bool
	offsets       []uint64
	counts        []uint64
}

// parseTIFF reads the header and first IFD of a classic TIFF.
func parseTIFF(r io.ReaderAt) (*tiffLayout, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "short TIFF header")
	}

	t := &tiffLayout{bits: 1, samples: 1, compression: compressionNone, predictor: 1, sampleFormat: sampleUint}
	switch string(hdr[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "not a TIFF file")
	}
	switch t.order.Uint16(hdr[2:]) {
	case 42:
	case 43:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "BigTIFF is not supported")
	default:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "not a TIFF file")
	}

	ifd := int64(t.order.Uint32(hdr[4:]))
	var n [2]byte
	if _, err := r.ReadAt(n[:], ifd); err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "read IFD at %d", ifd)
	}
	entries := make([]byte, 12*int(t.order.Uint16(n[:])))
	if _, err := r.ReadAt(entries, ifd+2); err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "read IFD entries")
	}

	for i := 0; i < len(entries); i += 12 {
		e := entries[i : i+12]
		vals, err := t.values(r, e)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		switch t.order.Uint16(e) {
		case tagImageWidth:
			t.width = int(vals[0])
		case tagImageLength:
			t.height = int(vals[0])
		case tagBitsPerSample:
			t.bits = int(vals[0])
		case tagCompression:
			t.compression = int(vals[0])
		case tagStripOffsets:
			t.offsets = vals
		case tagSamplesPerPixel:
			t.samples = int(vals[0])
		case tagRowsPerStrip:
			t.rowsPerStrip = int(vals[0])
		case tagStripByteCounts:
			t.counts = vals
		case tagPredictor:
			t.predictor = int(vals[0])
		case tagTileWidth:
			t.tiled = true
		case tagSampleFormat:
			t.sampleFormat = int(vals[0])
		}
	}

	if t.width <= 0 || t.height <= 0 {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "TIFF has no image size")
	}
	if err := checkPixels(t.width, t.height); err != nil {
		return nil, err
	}
	if t.rowsPerStrip <= 0 || t.rowsPerStrip > t.height {
		t.rowsPerStrip = t.height
	}
	return t, nil
}

// values decodes the BYTE, SHORT or LONG values of one IFD entry. Entries
// of other types yield nil.
func (t *tiffLayout) values(r io.ReaderAt, e []byte) ([]uint64, error) {
	var size int
	switch t.order.Uint16(e[2:]) {
	case 1:
		size = 1
	case 3:
		size = 2
	case 4:
		size = 4
	default:
		return nil, nil
	}
	count := t.order.Uint32(e[4:])
	if count > maxTIFFValues {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "IFD entry holds %d values", count)
	}

	raw := e[8:12]
	if n := int(count) * size; n > 4 {
		raw = make([]byte, n)
		if _, err := r.ReadAt(raw, int64(t.order.Uint32(e[8:]))); err != nil {
			return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "read IFD values")
		}
	}

	out := make([]uint64, count)
	for i := range out {
		switch size {
		case 1:
			out[i] = uint64(raw[i])
		case 2:
			out[i] = uint64(t.order.Uint16(raw[2*i:]))
		case 4:
			out[i] = uint64(t.order.Uint32(raw[4*i:]))
		}
	}
	return out, nil
}

// decode32 reads a single-sample 32-bit strip image as labels.
func (t *tiffLayout) decode32(r io.ReaderAt) (*models.LabelImage, error) {
	switch {
	case t.bits != 32 || t.samples != 1:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "want one 32-bit sample per pixel, got %d x %d bits", t.samples, t.bits)
	case t.tiled:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "tiled TIFF layout is not supported")
	case t.predictor != 1 && (t.predictor != 2 || t.sampleFormat == sampleFloat):
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "unsupported predictor %d", t.predictor)
	case t.sampleFormat < sampleUint || t.sampleFormat > sampleFloat:
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "unsupported sample format %d", t.sampleFormat)
	}
	strips := (t.height + t.rowsPerStrip - 1) / t.rowsPerStrip
	if len(t.offsets) < strips || len(t.counts) < strips {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "TIFF has %d strips, want %d", min(len(t.offsets), len(t.counts)), strips)
	}

	m := models.NewLabelImage(t.width, t.height)
	row := make([]byte, 4*t.width)
	for s := 0; s < strips; s++ {
		src, err := t.strip(r, s)
		if err != nil {
			return nil, err
		}
		y0 := s * t.rowsPerStrip
		for y := y0; y < min(y0+t.rowsPerStrip, t.height); y++ {
			if _, err := io.ReadFull(src, row); err != nil {
				src.Close()
				return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "strip %d row %d", s, y)
			}
			if err := t.convertRow(row, m.Pix[y*t.width:(y+1)*t.width]); err != nil {
				src.Close()
				return nil, err
			}
		}
		src.Close()
	}
	return m, nil
}

func (t *tiffLayout) strip(r io.ReaderAt, s int) (io.ReadCloser, error) {
	sec := io.NewSectionReader(r, int64(t.offsets[s]), int64(t.counts[s]))
	switch t.compression {
	case compressionNone:
		return io.NopCloser(sec), nil
	case compressionLZW:
		return lzw.NewReader(sec, lzw.MSB, 8), nil
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(sec)
		if err != nil {
			return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "strip %d", s)
		}
		return zr, nil
	}
	return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "unsupported TIFF compression %d", t.compression)
}

// convertRow undoes horizontal differencing and maps samples to ids.
// Negative and fractional samples are rejected.
func (t *tiffLayout) convertRow(raw []byte, dst []uint32) error {
	var prev uint32
	for x := range dst {
		v := t.order.Uint32(raw[4*x:])
		if t.predictor == 2 {
			v += prev
			prev = v
		}
		switch t.sampleFormat {
		case sampleInt:
			if int32(v) < 0 {
				return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "negative label %d", int32(v))
			}
		case sampleFloat:
			f := float64(math.Float32frombits(v))
			if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
				return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "label %v is not a non-negative integer", f)
			}
			v = uint32(f)
		}
		dst[x] = v
	}
	return nil
}
