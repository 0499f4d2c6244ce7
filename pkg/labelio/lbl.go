// Package labelio reads and writes label maps.
//
// Three formats are understood, chosen by file extension:
//   - .lbl: lossless 32-bit labels, zstd-compressed (strips and final maps)
//   - .tif/.tiff: 8-, 16- or 32-bit grayscale TIFF (labeler tiles, exports)
//   - .png: 8- or 16-bit grayscale PNG
//
// Written TIFF and PNG files are 16-bit, so they cannot hold ids above
// 65535; encoding such a map fails with an INVALID_FORMAT error instead of
// truncating ids.
package labelio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tilestitch/internal/models"
	stitcherr "tilestitch/pkg/errors"
)

const (
	lblMagic     = "TSLBL\x00\x01\n"
	lblHeaderLen = len(lblMagic) + 8
)

// maxLabelPixels caps the size of a decoded label map (4 GiB of ids).
const maxLabelPixels = 1 << 30

func checkPixels(width, height int) error {
	if width <= 0 || height <= 0 || uint64(width)*uint64(height) > maxLabelPixels {
		return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "implausible label map size %dx%d", width, height)
	}
	return nil
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4*maxLabelPixels))
		return dec
	},
}

// EncodeLBL writes m in .lbl form: magic, width and height as little-endian
// uint32, then the zstd-compressed little-endian pixel array.
func EncodeLBL(w io.Writer, m *models.LabelImage) error {
	if len(m.Pix) != m.Width*m.Height {
		return stitcherr.New(stitcherr.ErrCodeInvalidFormat, "label image %dx%d holds %d pixels", m.Width, m.Height, len(m.Pix))
	}

	raw := make([]byte, 4*len(m.Pix))
	for i, v := range m.Pix {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}

	enc := zstdEncPool.Get().(*zstd.Encoder)
	comp := enc.EncodeAll(raw, nil)
	zstdEncPool.Put(enc)

	var hdr [lblHeaderLen]byte
	copy(hdr[:], lblMagic)
	binary.LittleEndian.PutUint32(hdr[len(lblMagic):], uint32(m.Width))
	binary.LittleEndian.PutUint32(hdr[len(lblMagic)+4:], uint32(m.Height))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(comp); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// DecodeLBL reads a label image written by EncodeLBL.
func DecodeLBL(r io.Reader) (*models.LabelImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < lblHeaderLen {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "not a label map: short header")
	}
	width, height, err := parseLBLHeader(data[:lblHeaderLen])
	if err != nil {
		return nil, err
	}

	dec := zstdDecPool.Get().(*zstd.Decoder)
	raw, err := dec.DecodeAll(data[lblHeaderLen:], make([]byte, 0, 4*width*height))
	zstdDecPool.Put(dec)
	if err != nil {
		return nil, stitcherr.Wrap(stitcherr.ErrCodeInvalidFormat, err, "zstd decode")
	}
	if len(raw) != 4*width*height {
		return nil, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "payload holds %d bytes, want %d for %dx%d", len(raw), 4*width*height, width, height)
	}

	m := models.NewLabelImage(width, height)
	for i := range m.Pix {
		m.Pix[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return m, nil
}

func parseLBLHeader(hdr []byte) (width, height int, err error) {
	if !bytes.Equal(hdr[:len(lblMagic)], []byte(lblMagic)) {
		return 0, 0, stitcherr.New(stitcherr.ErrCodeInvalidFormat, "not a label map: bad magic")
	}
	width = int(binary.LittleEndian.Uint32(hdr[len(lblMagic):]))
	height = int(binary.LittleEndian.Uint32(hdr[len(lblMagic)+4:]))
	if err := checkPixels(width, height); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}
