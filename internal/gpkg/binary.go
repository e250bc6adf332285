package gpkg

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage binary header flags.
const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02 // envelope indicator 1 in bits 1-3
	flagEmpty        = 0x10
)

var magic = []byte("GP")

// envelopeSize maps the envelope indicator to its size in bytes.
var envelopeSize = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// EncodeGeometry writes g as StandardGeoPackageBinary: the "GP" header with
// srsID and an XY envelope, followed by little-endian WKB.
func EncodeGeometry(g geom.T, srsID int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(0) // version 1

	flags := byte(flagLittleEndian)
	if g.Empty() {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}
	buf.WriteByte(flags)

	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(int32(srsID)))
	buf.Write(scratch[:4])

	if !g.Empty() {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			buf.Write(scratch[:])
		}
	}

	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeGeometry parses a StandardGeoPackageBinary blob and returns the
// geometry and its srs_id.
func DecodeGeometry(data []byte) (geom.T, int, error) {
	if len(data) < 8 || !bytes.Equal(data[:2], magic) {
		return nil, 0, eris.New("gpkg: not a geopackage geometry")
	}
	if data[2] != 0 {
		return nil, 0, eris.Errorf("gpkg: unsupported geometry version %d", data[2])
	}
	flags := data[3]
	if flags&0x20 != 0 {
		return nil, 0, eris.New("gpkg: extended geometry types are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int(int32(order.Uint32(data[4:8])))

	size, ok := envelopeSize[(flags>>1)&0x07]
	if !ok {
		return nil, 0, eris.Errorf("gpkg: invalid envelope indicator in flags %#x", flags)
	}
	offset := 8 + size
	if len(data) < offset {
		return nil, 0, eris.New("gpkg: truncated geometry header")
	}

	g, err := wkb.Unmarshal(data[offset:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srsID, nil
}
