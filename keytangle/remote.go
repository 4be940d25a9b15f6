package keytangle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// A RemoteVerifier delegates session verification to a server on the far side
// of a Framer, e.g. one running ServeVerifier next to quantum hardware. Both
// parties' material is sent as handoffs and the reply carries the consistent
// indices.
type RemoteVerifier struct {
	mu     sync.Mutex
	framer *Framer
	stats  ChannelStats
}

// NewRemoteVerifier returns a RemoteVerifier speaking over f.
func NewRemoteVerifier(f *Framer) *RemoteVerifier {
	return &RemoteVerifier{framer: f}
}

// VerifySession implements the Verifier interface. If ctx has a deadline and
// the underlying channel supports deadlines (e.g. a net.Conn), the whole
// exchange is bounded by it.
func (v *RemoteVerifier) VerifySession(ctx context.Context, alice, bob Material) ([]int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d, ok := ctx.Deadline(); ok {
		if dl, ok := v.framer.rw.(deadliner); ok {
			if err := dl.SetDeadline(d); err != nil {
				return nil, fmt.Errorf("setting channel deadline: %w", err)
			}
			defer dl.SetDeadline(time.Time{})
		}
	}
	if err := SendHandoff(v.framer, HandoffFromMaterial(alice), &v.stats); err != nil {
		return nil, fmt.Errorf("sending alice's material: %w", err)
	}
	if err := SendHandoff(v.framer, HandoffFromMaterial(bob), &v.stats); err != nil {
		return nil, fmt.Errorf("sending bob's material: %w", err)
	}
	reply, err := ReceiveHandoff(v.framer, &v.stats)
	if err != nil {
		return nil, fmt.Errorf("receiving correct measurements: %w", err)
	}
	if reply.CorrectMeasurements == nil {
		return nil, fmt.Errorf("verification reply carries no %s", fieldCorrectMeasurements)
	}
	return reply.CorrectMeasurements, nil
}

// Stats returns the traffic exchanged so far.
func (v *RemoteVerifier) Stats() ChannelStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// ServeVerifier answers a single verification request read from f, running
// ver over the received material and replying with the consistent indices.
// s may be nil.
func ServeVerifier(ctx context.Context, f *Framer, ver Verifier, s *ChannelStats) error {
	ah, err := ReceiveHandoff(f, s)
	if err != nil {
		return fmt.Errorf("receiving alice's material: %w", err)
	}
	bh, err := ReceiveHandoff(f, s)
	if err != nil {
		return fmt.Errorf("receiving bob's material: %w", err)
	}
	alice, err := ah.Material()
	if err != nil {
		return fmt.Errorf("alice's material: %w", err)
	}
	bob, err := bh.Material()
	if err != nil {
		return fmt.Errorf("bob's material: %w", err)
	}
	indices, err := ver.VerifySession(ctx, alice, bob)
	if err != nil {
		return err
	}
	return SendHandoff(f, Handoff{CorrectMeasurements: indices}, s)
}
