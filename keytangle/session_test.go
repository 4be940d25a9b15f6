package keytangle

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seededRands returns a NewRand whose i'th call is seeded with i+1.
func seededRands() func() *rand.Rand {
	var seed int64
	return func() *rand.Rand {
		seed++
		return rand.New(rand.NewSource(seed))
	}
}

// mirroredRands returns a NewRand that hands both parties the same choices.
func mirroredRands() *rand.Rand {
	return rand.New(rand.NewSource(7))
}

func quietLogger() logrus.FieldLogger {
	l, _ := logtest.NewNullLogger()
	return l
}

func TestPipelineFiveRounds(t *testing.T) {
	alice := Material{
		Pairings:  []Pairing{Pairing01x23, Pairing02x13, Pairing03x12, Pairing01x23, Pairing02x13},
		Groupings: []Grouping{0, 1, 2, 3, 0},
	}
	bob := Material{
		Pairings:  []Pairing{Pairing01x23, Pairing03x12, Pairing03x12, Pairing01x23, Pairing02x13},
		Groupings: []Grouping{0, 1, 2, 3, 1},
	}

	indices, err := VerifySession(context.Background(), fixedOracle(0, 2, 3), alice, bob, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, indices)

	aliceSifted, bobSifted, err := Sift(alice, bob, indices)
	require.NoError(t, err)
	assert.Equal(t, []Grouping{0, 2, 3}, aliceSifted.Groupings)

	aliceKeyed, bobKeyed, err := Detect(scripted(1), aliceSifted, bobSifted, 1)
	require.NoError(t, err)

	aliceKey, err := GenerateCode(aliceKeyed.Groupings)
	require.NoError(t, err)
	bobKey, err := GenerateCode(bobKeyed.Groupings)
	require.NoError(t, err)
	assert.Equal(t, "0011", aliceKey.String())
	assert.True(t, bitmap.Equal(aliceKey, bobKey))

	msg := mustBits(t, "1010")
	cipher, err := Encrypt(msg, aliceKey)
	require.NoError(t, err)
	assert.Equal(t, "1001", cipher.String())
	plain, err := Decrypt(cipher, bobKey)
	require.NoError(t, err)
	assert.True(t, bitmap.Equal(plain, msg))

	hi, err := EncodeMessage("hi")
	require.NoError(t, err)
	_, err = Encrypt(hi, aliceKey)
	assert.ErrorIs(t, err, ErrInsufficientKeyMaterial)
}

func TestPipelineTenRounds(t *testing.T) {
	alice := mustGenerate(t, 10, 10)
	bob := alice.clone()
	bob.Groupings[5] = (bob.Groupings[5] + 1) % NumGroupings

	indices, err := VerifySession(context.Background(), equalOracle, alice, bob, DefaultParallelism)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 6, 7, 8, 9}, indices)

	aliceSifted, bobSifted, err := Sift(alice, bob, indices)
	require.NoError(t, err)
	aliceKeyed, bobKeyed, err := Detect(rand.New(rand.NewSource(3)), aliceSifted, bobSifted, 1)
	require.NoError(t, err)
	require.Equal(t, 8, aliceKeyed.Len())

	aliceKey, err := GenerateCode(aliceKeyed.Groupings)
	require.NoError(t, err)
	bobKey, err := GenerateCode(bobKeyed.Groupings)
	require.NoError(t, err)

	msg, err := EncodeMessage("hi")
	require.NoError(t, err)
	cipher, err := Encrypt(msg, aliceKey)
	require.NoError(t, err)
	plain, err := Decrypt(cipher, bobKey)
	require.NoError(t, err)
	text, err := DecodeMessage(plain)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestNewSessionOpts(t *testing.T) {
	tcs := []struct {
		name string
		opts SessionOpts
	}{
		{"no oracle", SessionOpts{}},
		{"oracle and verifier", SessionOpts{Oracle: equalOracle, Verifier: OracleVerifier{Oracle: equalOracle}}},
		{"negative correction bits", SessionOpts{Oracle: equalOracle, CorrectionBits: -1}},
		{"undersampled", SessionOpts{Oracle: equalOracle, Oversample: 0.5}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSession(tc.opts)
			assert.Error(t, err)
		})
	}

	s, err := NewSession(SessionOpts{Oracle: equalOracle})
	require.NoError(t, err)
	assert.Equal(t, DefaultCorrectionBits, s.correctionBits)
	assert.Equal(t, DefaultOversample, s.oversample)
}

func TestNegotiateMirroredParties(t *testing.T) {
	s, err := NewSession(SessionOpts{
		Oracle:  equalOracle,
		NewRand: mirroredRands,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	keys, stats, err := s.Negotiate(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, Stats{Rounds: 40, Consistent: 40, Sampled: 4, KeyBits: 72}, stats)
	assert.True(t, bitmap.Equal(keys.Alice, keys.Bob))
}

func TestExchange(t *testing.T) {
	s, err := NewSession(SessionOpts{
		Oracle:  equalOracle,
		NewRand: mirroredRands,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	tr, err := s.Exchange(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", tr.Recovered)
	assert.Equal(t, 40, tr.Ciphertext.Size())
	assert.Equal(t, RoundsFor(5, DefaultCorrectionBits, DefaultOversample), tr.Stats.Rounds)
	assert.GreaterOrEqual(t, tr.Stats.KeyBits, 40)
}

func TestExchangeRejectsEncodingFirst(t *testing.T) {
	var calls, rands int32
	s, err := NewSession(SessionOpts{
		Oracle: OracleFunc(func(context.Context, int, Round, Round) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return true, nil
		}),
		NewRand: func() *rand.Rand {
			atomic.AddInt32(&rands, 1)
			return mirroredRands()
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	_, err = s.Exchange(context.Background(), "héllo")
	assert.ErrorIs(t, err, ErrInvalidMessageEncoding)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StageEncode, abort.Stage)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Zero(t, atomic.LoadInt32(&rands))
}

func TestNegotiateAborts(t *testing.T) {
	verifyErr := errors.New("backend unavailable")
	tcs := []struct {
		name      string
		opts      SessionOpts
		rounds    int
		wantStage string
		wantErr   error
	}{{
		name:      "no rounds",
		opts:      SessionOpts{Oracle: equalOracle, NewRand: mirroredRands},
		rounds:    0,
		wantStage: StageDetect,
		wantErr:   ErrInsufficientMaterial,
	}, {
		name:      "too few consistent rounds",
		opts:      SessionOpts{Oracle: fixedOracle(0, 1), NewRand: mirroredRands},
		rounds:    20,
		wantStage: StageDetect,
		wantErr:   ErrInsufficientMaterial,
	}, {
		name: "forged oracle",
		opts: SessionOpts{
			Oracle: OracleFunc(func(context.Context, int, Round, Round) (bool, error) {
				return true, nil
			}),
			NewRand:        seededRands(),
			CorrectionBits: 16,
		},
		rounds:    200,
		wantStage: StageDetect,
		wantErr:   ErrAttackerDetected,
	}, {
		name: "verifier failure",
		opts: SessionOpts{
			Oracle: OracleFunc(func(context.Context, int, Round, Round) (bool, error) {
				return false, verifyErr
			}),
			NewRand: mirroredRands,
		},
		rounds:    10,
		wantStage: StageVerify,
		wantErr:   verifyErr,
	}}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			logger, hook := logtest.NewNullLogger()
			tc.opts.Logger = logger
			s, err := NewSession(tc.opts)
			require.NoError(t, err)

			keys, stats, err := s.Negotiate(context.Background(), tc.rounds)
			assert.ErrorIs(t, err, tc.wantErr)
			var abort *AbortError
			require.ErrorAs(t, err, &abort)
			assert.Equal(t, tc.wantStage, abort.Stage)
			assert.Zero(t, keys.Alice.Size())
			assert.Zero(t, keys.Bob.Size())
			assert.Equal(t, tc.rounds, stats.Rounds)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Equal(t, tc.wantStage, entry.Data["stage"])
			assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), tc.wantErr)
		})
	}
}

func TestSessionIDIndependentOfRandomness(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	var rands int32
	s, err := NewSession(SessionOpts{
		Oracle: equalOracle,
		NewRand: func() *rand.Rand {
			atomic.AddInt32(&rands, 1)
			return mirroredRands()
		},
		Logger: logger,
	})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 2; i++ {
		hook.Reset()
		_, _, err := s.Negotiate(context.Background(), 40)
		require.NoError(t, err)
		entries := hook.AllEntries()
		require.NotEmpty(t, entries)
		id, ok := entries[0].Data["session"].(string)
		require.True(t, ok)
		_, err = uuid.Parse(id)
		require.NoError(t, err)
		for _, e := range entries {
			assert.Equal(t, id, e.Data["session"])
		}
		ids = append(ids, id)
	}
	// Identically seeded negotiations still get distinct IDs, and tagging the
	// log draws nothing from the sources the parties use.
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, int32(6), atomic.LoadInt32(&rands))
}

func TestNegotiateCancelled(t *testing.T) {
	s, err := NewSession(SessionOpts{Oracle: equalOracle, NewRand: mirroredRands, Logger: quietLogger()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = s.Negotiate(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoundsFor(t *testing.T) {
	tcs := []struct {
		chars, k   int
		oversample float64
		want       int
	}{
		{0, 1, 1, 24},
		{1, 1, 1, 60},
		{2, 4, 3, 432},
		{5, 4, 1.5, 432},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, RoundsFor(tc.chars, tc.k, tc.oversample), "RoundsFor(%d, %d, %g)", tc.chars, tc.k, tc.oversample)
	}
}
