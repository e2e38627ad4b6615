package video

import (
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot/link"
)

// Pixel format tags carried by Frame.Format.
const (
	FormatH264AnnexB = "h264/annexb"
)

// ErrAwaitingKeyframe is returned by H264Decoder until the stream has
// delivered a parameter set it can size frames from.
var ErrAwaitingKeyframe = errors.New("waiting for SPS")

// FrameDecoder turns an encoded access unit into a Frame. Implementations
// are called from the link's media goroutine, one frame at a time.
type FrameDecoder interface {
	Decode(f link.EncodedFrame) (Frame, error)
}

// Resetter is implemented by decoders that keep stream state. Reset is
// called each time the pipeline is enabled.
type Resetter interface {
	Reset()
}

// FrameDecoderFunc adapts a function to FrameDecoder.
type FrameDecoderFunc func(f link.EncodedFrame) (Frame, error)

func (fn FrameDecoderFunc) Decode(f link.EncodedFrame) (Frame, error) {
	return fn(f)
}

// H264Decoder validates Annex-B access units and tags them with the frame
// size from the most recent SPS. Pixel data stays encoded; rendering
// surfaces decode it themselves.
type H264Decoder struct {
	mu     sync.Mutex
	width  int
	height int
}

// NewH264Decoder creates a decoder with no known frame size.
func NewH264Decoder() *H264Decoder {
	return &H264Decoder{}
}

// Reset forgets the frame size so the next session starts from its own SPS.
func (d *H264Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = 0, 0
}

func (d *H264Decoder) Decode(f link.EncodedFrame) (Frame, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(f.Data); err != nil {
		return Frame{}, errors.Wrap(err, "invalid access unit")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := false
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			var sps h264.SPS
			if err := sps.Unmarshal(nalu); err != nil {
				return Frame{}, errors.Wrap(err, "invalid SPS")
			}
			d.width, d.height = sps.Width(), sps.Height()
		case h264.NALUTypeIDR:
			key = true
		}
	}
	if d.width == 0 || d.height == 0 {
		return Frame{}, ErrAwaitingKeyframe
	}

	return Frame{
		Data:      f.Data,
		Width:     d.width,
		Height:    d.height,
		Format:    FormatH264AnnexB,
		KeyFrame:  key,
		Timestamp: f.Received,
	}, nil
}
