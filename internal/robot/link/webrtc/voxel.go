package webrtc

import (
	"encoding/json"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Decoder names accepted by SelectDecoder.
const (
	DecoderNative = "native"
	DecoderNone   = "none"
)

const maxVoxelBytes = 16 << 20

// voxelMeta is the metadata sent with a compressed voxel map.
type voxelMeta struct {
	Origin     [3]float64 `json:"origin"`
	Resolution float64    `json:"resolution"`
	SrcSize    int        `json:"src_size"`
	Width      []int      `json:"width"`
}

// decodeVoxelMap decompresses an LZ4 block of occupancy bits and returns
// the occupied cells as points. Each byte covers eight cells along x; the
// byte index encodes z (0x800 bytes per layer), y (0x10 bytes per row) and
// the x group.
func decodeVoxelMap(meta voxelMeta, payload []byte) ([][3]float64, error) {
	if meta.SrcSize <= 0 || meta.SrcSize > maxVoxelBytes {
		return nil, errors.Errorf("invalid voxel src_size %d", meta.SrcSize)
	}
	if meta.Resolution <= 0 {
		return nil, errors.Errorf("invalid voxel resolution %v", meta.Resolution)
	}

	bits := make([]byte, meta.SrcSize)
	n, err := lz4.UncompressBlock(payload, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress voxel map")
	}
	bits = bits[:n]

	var points [][3]float64
	for i, b := range bits {
		if b == 0 {
			continue
		}
		z := i / 0x800
		y := (i % 0x800) / 0x10
		xBase := (i % 0x10) * 8
		for bit := 0; bit < 8; bit++ {
			if b&(1<<(7-bit)) == 0 {
				continue
			}
			x := xBase + bit
			points = append(points, [3]float64{
				float64(x)*meta.Resolution + meta.Origin[0],
				float64(y)*meta.Resolution + meta.Origin[1],
				float64(z)*meta.Resolution + meta.Origin[2],
			})
		}
	}
	return points, nil
}

// voxelRecord decodes a voxel binary message into the structured record
// handed to subscribers. Metadata keeps its typed form so point extraction
// only sees "points".
func voxelRecord(meta json.RawMessage, payload []byte) (map[string]any, error) {
	var vm voxelMeta
	if err := json.Unmarshal(meta, &vm); err != nil {
		return nil, errors.Wrap(err, "invalid voxel metadata")
	}
	points, err := decodeVoxelMap(vm, payload)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"points":     points,
		"origin":     vm.Origin,
		"resolution": vm.Resolution,
		"width":      vm.Width,
	}, nil
}
