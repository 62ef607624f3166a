package gpkg

import (
	"bytes"
	"encoding/binary"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x01 << 1
	flagEmpty        = 0x10
	flagExtended     = 0x20
)

// EncodeGeometry wraps g in a GeoPackage binary header with an XY
// envelope followed by little-endian WKB.
func EncodeGeometry(g geom.T, srid int) ([]byte, error) {
	empty := len(g.FlatCoords()) == 0
	flags := byte(flagLittleEndian)
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}

	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0, flags})
	_ = binary.Write(&buf, binary.LittleEndian, int32(srid))
	if !empty {
		b := g.Bounds()
		_ = binary.Write(&buf, binary.LittleEndian, [4]float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)})
	}

	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: marshal WKB")
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// DecodeGeometry parses a GeoPackage geometry blob and returns the
// geometry and its srs_id.
func DecodeGeometry(b []byte) (geom.T, int, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a GeoPackage geometry blob")
	}
	if b[2] != 0 {
		return nil, 0, eris.Errorf("gpkg: unsupported blob version %d", b[2])
	}
	flags := b[3]
	if flags&flagExtended != 0 {
		return nil, 0, eris.New("gpkg: extended geometry blobs are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(b[4:8])))

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, eris.Errorf("gpkg: invalid envelope code %d", (flags>>1)&0x07)
	}
	off := 8 + envelope
	if len(b) < off {
		return nil, 0, eris.New("gpkg: truncated geometry blob")
	}

	g, err := wkb.Unmarshal(b[off:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: unmarshal WKB")
	}
	return g, srid, nil
}
