package tiles

import (
	"encoding/binary"
	"fmt"
)

// Mask is a decoded pixel grid of shadow samples, row-major with (0,0) at
// the geographic north-west corner. Immutable once loaded.
type Mask struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Samples []byte `json:"samples"`
}

// mask blobs carry a 4-byte big-endian header (width, height as uint16)
// followed by width*height raw samples
const maskHeaderLen = 4

func DecodeMask(raw []byte) (Mask, error) {
	if len(raw) < maskHeaderLen {
		return Mask{}, fmt.Errorf("mask too short: %d bytes", len(raw))
	}
	w := int(binary.BigEndian.Uint16(raw[0:2]))
	h := int(binary.BigEndian.Uint16(raw[2:4]))
	if w == 0 || h == 0 {
		return Mask{}, fmt.Errorf("mask has zero dimension: %dx%d", w, h)
	}
	samples := raw[maskHeaderLen:]
	if len(samples) != w*h {
		return Mask{}, fmt.Errorf("mask sample count %d does not match %dx%d", len(samples), w, h)
	}
	return Mask{Width: w, Height: h, Samples: samples}, nil
}

func EncodeMask(m Mask) ([]byte, error) {
	if m.Width <= 0 || m.Height <= 0 || m.Width > 0xffff || m.Height > 0xffff {
		return nil, fmt.Errorf("mask dimensions out of range: %dx%d", m.Width, m.Height)
	}
	if len(m.Samples) != m.Width*m.Height {
		return nil, fmt.Errorf("mask sample count %d does not match %dx%d", len(m.Samples), m.Width, m.Height)
	}
	out := make([]byte, maskHeaderLen+len(m.Samples))
	binary.BigEndian.PutUint16(out[0:2], uint16(m.Width))
	binary.BigEndian.PutUint16(out[2:4], uint16(m.Height))
	copy(out[maskHeaderLen:], m.Samples)
	return out, nil
}
