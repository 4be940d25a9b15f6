package keytangle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	DefaultCorrectionBits = 4
	DefaultOversample     = 3.0
)

// Stats packages together a collection of potentially interesting metrics
// pertaining to a key negotiation. None of them reveal key material.
type Stats struct {
	Rounds     int
	Consistent int
	Sampled    int
	KeyBits    int
}

// SessionOpts packages together the arguments necessary to construct a new
// Session.
type SessionOpts struct {
	// Verifier determines which rounds were consistent. If nil, an
	// OracleVerifier around Oracle is used. Exactly one of Verifier and Oracle
	// must be non-nil.
	Verifier Verifier
	Oracle   Oracle

	// Parallelism bounds concurrent oracle calls when Oracle is used. Defaults
	// to DefaultParallelism.
	Parallelism int

	// CorrectionBits is the number of sifted rounds sacrificed to the
	// eavesdropper check. Defaults to DefaultCorrectionBits.
	CorrectionBits int

	// Oversample scales the number of rounds Exchange generates beyond the
	// expected minimum, to make running out of key unlikely. Defaults to
	// DefaultOversample.
	Oversample float64

	// NewRand returns a fresh source of randomness. It is called once per
	// party and then once for the eavesdropper check on every negotiation. Tests may
	// return seeded pRNGs, but for security this must be truly random.
	// Defaults to EntropyRand.
	NewRand func() *rand.Rand

	// Logger receives stage transitions and aborts. Defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// A Session runs the key negotiation pipeline between two co-located parties.
// Sessions hold no state between negotiations and are safe for concurrent use
// as long as the configured Verifier is.
type Session struct {
	verifier       Verifier
	correctionBits int
	oversample     float64
	newRand        func() *rand.Rand
	log            logrus.FieldLogger
}

// NewSession returns a new Session, configured in accordance with opts, or an
// error if the options are nonsensical.
func NewSession(opts SessionOpts) (*Session, error) {
	if (opts.Verifier == nil) == (opts.Oracle == nil) {
		return nil, errors.New("exactly one of {Verifier, Oracle} must be specified")
	}
	ver := opts.Verifier
	if ver == nil {
		ver = OracleVerifier{Oracle: opts.Oracle, Parallelism: opts.Parallelism}
	}
	k := opts.CorrectionBits
	if k == 0 {
		k = DefaultCorrectionBits
	}
	if k < 0 {
		return nil, fmt.Errorf("CorrectionBits must be positive, got %d", k)
	}
	oversample := opts.Oversample
	if oversample == 0 {
		oversample = DefaultOversample
	}
	if oversample < 1 {
		return nil, fmt.Errorf("Oversample must be at least 1, got %g", oversample)
	}
	newRand := opts.NewRand
	if newRand == nil {
		newRand = EntropyRand
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		verifier:       ver,
		correctionBits: k,
		oversample:     oversample,
		newRand:        newRand,
		log:            log,
	}, nil
}

// Keys holds each party's independently derived key. The protocol does not
// confirm that they agree; a successful eavesdropper check is taken as
// evidence that they do.
type Keys struct {
	Alice bitmap.Dense
	Bob   bitmap.Dense
}

// Negotiate runs one key negotiation over the given number of rounds. On
// failure the error is an *AbortError and Keys is empty.
func (s *Session) Negotiate(ctx context.Context, rounds int) (keys Keys, stats Stats, err error) {
	log := s.log.WithField("session", uuid.NewString())
	abort := func(stage string, err error) (Keys, Stats, error) {
		log.WithField("stage", stage).WithError(err).Warn("Session aborted")
		return Keys{}, stats, &AbortError{Stage: stage, Err: err}
	}
	stats.Rounds = rounds

	alice, bob, err := s.generate(ctx, rounds)
	if err != nil {
		return abort(StageGenerate, err)
	}
	log.WithFields(logrus.Fields{"stage": StageGenerate, "rounds": rounds}).Debug("Generated round parameters")

	indices, err := s.verifier.VerifySession(ctx, alice, bob)
	if err != nil {
		return abort(StageVerify, err)
	}
	stats.Consistent = len(indices)

	aliceSifted, bobSifted, err := Sift(alice, bob, indices)
	if err != nil {
		return abort(StageSift, err)
	}
	log.WithFields(logrus.Fields{"stage": StageSift, "sifted": aliceSifted.Len()}).Debug("Sifted consistent rounds")

	aliceKeyed, bobKeyed, err := Detect(s.newRand(), aliceSifted, bobSifted, s.correctionBits)
	if err != nil {
		return abort(StageDetect, err)
	}
	stats.Sampled = s.correctionBits
	log.WithFields(logrus.Fields{"stage": StageDetect, "remaining": aliceKeyed.Len()}).Debug("Eavesdropper check passed")

	// Each party derives its key from its own groupings only.
	if keys.Alice, err = GenerateCode(aliceKeyed.Groupings); err != nil {
		return abort(StageKeygen, err)
	}
	if keys.Bob, err = GenerateCode(bobKeyed.Groupings); err != nil {
		return abort(StageKeygen, err)
	}
	stats.KeyBits = keys.Alice.Size()
	log.WithFields(logrus.Fields{"stage": StageKeygen, "key_bits": stats.KeyBits}).Debug("Generated keys")
	return keys, stats, nil
}

// generate draws both parties' material concurrently, each from its own
// source of randomness.
func (s *Session) generate(ctx context.Context, rounds int) (alice, bob Material, err error) {
	aliceRand, bobRand := s.newRand(), s.newRand()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		alice, err = GenerateMaterial(aliceRand, rounds)
		return err
	})
	g.Go(func() (err error) {
		bob, err = GenerateMaterial(bobRand, rounds)
		return err
	})
	if err := g.Wait(); err != nil {
		return Material{}, Material{}, err
	}
	if err := ctx.Err(); err != nil {
		return Material{}, Material{}, err
	}
	return alice, bob, nil
}

// A Transcript records a successful single-message exchange.
type Transcript struct {
	Ciphertext bitmap.Dense
	Recovered  string
	Stats      Stats
}

// Exchange negotiates a key long enough for text, encrypts text with Alice's
// key and decrypts the result with Bob's. The text is checked for a supported
// encoding before any rounds are generated. On failure the error is an
// *AbortError and the Transcript is empty.
func (s *Session) Exchange(ctx context.Context, text string) (Transcript, error) {
	msg, err := EncodeMessage(text)
	if err != nil {
		s.log.WithField("stage", StageEncode).WithError(err).Warn("Session aborted")
		return Transcript{}, &AbortError{Stage: StageEncode, Err: err}
	}
	keys, stats, err := s.Negotiate(ctx, RoundsFor(len(text), s.correctionBits, s.oversample))
	if err != nil {
		return Transcript{}, err
	}
	cipher, err := Encrypt(msg, keys.Alice)
	if err != nil {
		return Transcript{}, s.cipherAbort(err)
	}
	plain, err := Decrypt(cipher, keys.Bob)
	if err != nil {
		return Transcript{}, s.cipherAbort(err)
	}
	recovered, err := DecodeMessage(plain)
	if err != nil {
		return Transcript{}, s.cipherAbort(err)
	}
	return Transcript{Ciphertext: cipher, Recovered: recovered, Stats: stats}, nil
}

func (s *Session) cipherAbort(err error) error {
	s.log.WithField("stage", StageCipher).WithError(err).Warn("Session aborted")
	return &AbortError{Stage: StageCipher, Err: err}
}

// RoundsFor returns the number of rounds to generate so that, on average,
// oversample times as many rounds as needed survive sifting to carry a key for
// chars characters after correctionBits check rounds. One round in
// NumPairings*NumGroupings is consistent when both parties choose uniformly.
func RoundsFor(chars, correctionBits int, oversample float64) int {
	// Each surviving round carries 2 key bits, so 4 per 8-bit character, and
	// the check needs at least one round left over.
	keyRounds := 4 * chars
	if keyRounds == 0 {
		keyRounds = 1
	}
	needed := float64(keyRounds+correctionBits) * NumPairings * NumGroupings
	return int(math.Ceil(needed * oversample))
}
