package keytangle

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
	"google.golang.org/protobuf/proto"
)

var (
	DefaultEpsilonAuth   = 1e-12
	DefaultMaxFrameBytes = 1 << 20
)

// ChannelStats counts traffic over a Framer.
type ChannelStats struct {
	MessagesSent     int
	MessagesReceived int
	BytesSent        int
	BytesRead        int
}

// FramerOpts packages together the arguments necessary to construct a Framer.
type FramerOpts struct {
	// Channel carries the frames. Must be non-nil.
	Channel io.ReadWriter

	// Secret is a bootstrap secret shared by both ends. NewFramer reads the
	// hash diagonals from it, and every frame then spends one MAC's worth of
	// it as a one-time pad. Both ends must read and write frames in the same
	// order. Must be non-nil.
	Secret io.Reader

	// EpsilonAuth is the probability we accept that a forged frame passes
	// verification. Each frame spends log_2(1/EpsilonAuth) bits of Secret,
	// rounded up to the nearest byte. Defaults to DefaultEpsilonAuth.
	EpsilonAuth float64

	// MaxFrameBytes bounds the marshalled size of a single message. Defaults
	// to DefaultMaxFrameBytes.
	MaxFrameBytes int
}

// A Framer reads and writes framed protocol buffers to the wire.
// The structure of the frame is trivial:  proto-length | proto | mac
//
// MACs are computed by applying a secret Toeplitz matrix to create a hash, then
// applying a one-time pad to the hash to allow for unconditional security. See
// also, https://arxiv.org/abs/1603.08387.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	rw       io.ReadWriter
	secret   io.Reader
	hash     toeplitzHash
	maxFrame int
}

// NewFramer returns a Framer configured by opts.
func NewFramer(opts FramerOpts) (*Framer, error) {
	if opts.Channel == nil {
		return nil, errors.New("must provide Channel")
	}
	if opts.Secret == nil {
		return nil, errors.New("must provide Secret")
	}
	eps := opts.EpsilonAuth
	if eps == 0 {
		eps = DefaultEpsilonAuth
	}
	if eps <= 0 || eps >= 1 {
		return nil, fmt.Errorf("EpsilonAuth must be in (0, 1), got %g", eps)
	}
	maxFrame := opts.MaxFrameBytes
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	if maxFrame < 0 {
		return nil, fmt.Errorf("MaxFrameBytes must be positive, got %d", maxFrame)
	}
	macBits := 8 * bitmap.BytesFor(int(math.Ceil(math.Log2(1/eps))))
	diagBits := macBits + 8*maxFrame - 1
	diags := make([]byte, bitmap.BytesFor(diagBits))
	if _, err := io.ReadFull(opts.Secret, diags); err != nil {
		return nil, fmt.Errorf("reading hash diagonals from secret: %w", err)
	}
	return &Framer{
		rw:     opts.Channel,
		secret: opts.Secret,
		hash: toeplitzHash{
			diags: bitmap.NewDense(diags, diagBits),
			m:     macBits,
		},
		maxFrame: maxFrame,
	}, nil
}

// Write marshals m and writes it as a single authenticated frame. s may be nil.
func (f *Framer) Write(m proto.Message, s *ChannelStats) error {
	marshalled, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	if len(marshalled) > f.maxFrame {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(marshalled), f.maxFrame)
	}
	mac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if err := binary.Write(f.rw, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := f.rw.Write(marshalled); err != nil {
		return err
	}
	if _, err := f.rw.Write(mac); err != nil {
		return err
	}
	if s != nil {
		s.MessagesSent++
		s.BytesSent += 4 + len(marshalled) + len(mac)
	}
	return nil
}

// Read reads a single frame, verifies its MAC and unmarshals it into m. s may
// be nil.
func (f *Framer) Read(m proto.Message, s *ChannelStats) error {
	var mLen int32
	if err := binary.Read(f.rw, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	if mLen < 0 || int(mLen) > f.maxFrame {
		return fmt.Errorf("frame length %d outside [0, %d]", mLen, f.maxFrame)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(f.rw, marshalled); err != nil {
		return err
	}
	mac := make([]byte, f.hash.m/8)
	if _, err := io.ReadFull(f.rw, mac); err != nil {
		return err
	}
	emac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mac, emac) != 1 {
		return errors.New("invalid mac")
	}
	if s != nil {
		s.MessagesReceived++
		s.BytesRead += 4 + len(marshalled) + len(mac)
	}
	return proto.Unmarshal(marshalled, m)
}

func (f *Framer) buildMAC(msg []byte) ([]byte, error) {
	hash, err := f.hash.Sum(bitmap.NewDense(msg, -1))
	if err != nil {
		return nil, err
	}
	otp := make([]byte, hash.SizeBytes())
	if _, err := io.ReadFull(f.secret, otp); err != nil {
		return nil, fmt.Errorf("reading mac pad from secret: %w", err)
	}
	return bitmap.XOr(hash, bitmap.NewDense(otp, -1)).Data(), nil
}
