package keytangle

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handoff field names.
const (
	fieldPairings            = "pairings"
	fieldGroupings           = "groupings"
	fieldCorrectMeasurements = "correct_measurements"
	fieldCode                = "code"

	// Some writers spell the measurements field with a dash.
	fieldCorrectMeasurementsAlt = "correct-measurements"
)

// A Handoff is the record one party's material travels in between processing
// stages, either as a JSON file or as a protobuf Struct over a Framer:
//
//	{"pairings": [[[0,1],[2,3]], ...], "groupings": [0, ...],
//	 "correct_measurements": [0, ...], "code": "0110..."}
//
// CorrectMeasurements is filled in once the oracle has run, and Code once a
// key has been generated; both are omitted from the encoding while unset.
type Handoff struct {
	Pairings            []Pairing
	Groupings           []Grouping
	CorrectMeasurements []int
	Code                string
}

// HandoffFromMaterial wraps m in a Handoff.
func HandoffFromMaterial(m Material) Handoff {
	return Handoff{Pairings: m.Pairings, Groupings: m.Groupings}
}

// Material returns the validated material carried by h.
func (h Handoff) Material() (Material, error) {
	m := Material{Pairings: h.Pairings, Groupings: h.Groupings}
	if err := m.Validate(); err != nil {
		return Material{}, err
	}
	return m, nil
}

// ToProto converts h into an equivalent Struct proto.
func (h Handoff) ToProto() (*structpb.Struct, error) {
	pairings := make([]interface{}, 0, len(h.Pairings))
	for i, p := range h.Pairings {
		if !p.Valid() {
			return nil, fmt.Errorf("pairing %d: %w: %d", i, ErrInvalidPairing, uint8(p))
		}
		s := p.Pairs()
		pairings = append(pairings, []interface{}{
			[]interface{}{s[0][0], s[0][1]},
			[]interface{}{s[1][0], s[1][1]},
		})
	}
	groupings := make([]interface{}, 0, len(h.Groupings))
	for i, g := range h.Groupings {
		if !g.Valid() {
			return nil, fmt.Errorf("grouping %d: %w: %d", i, ErrInvalidGrouping, uint8(g))
		}
		groupings = append(groupings, int(g))
	}
	fields := map[string]interface{}{
		fieldPairings:  pairings,
		fieldGroupings: groupings,
	}
	if h.CorrectMeasurements != nil {
		indices := make([]interface{}, 0, len(h.CorrectMeasurements))
		for _, i := range h.CorrectMeasurements {
			indices = append(indices, i)
		}
		fields[fieldCorrectMeasurements] = indices
	}
	if h.Code != "" {
		fields[fieldCode] = h.Code
	}
	return structpb.NewStruct(fields)
}

// HandoffFromProto converts a Struct proto into a Handoff. Missing fields are
// left empty; malformed ones are an error.
func HandoffFromProto(s *structpb.Struct) (Handoff, error) {
	var h Handoff
	fields := s.GetFields()
	if v, ok := fields[fieldPairings]; ok {
		list, err := listOf(v, fieldPairings)
		if err != nil {
			return Handoff{}, err
		}
		for i, pv := range list {
			p, err := pairingFromValue(pv)
			if err != nil {
				return Handoff{}, fmt.Errorf("%s[%d]: %w", fieldPairings, i, err)
			}
			h.Pairings = append(h.Pairings, p)
		}
	}
	if v, ok := fields[fieldGroupings]; ok {
		list, err := listOf(v, fieldGroupings)
		if err != nil {
			return Handoff{}, err
		}
		for i, gv := range list {
			g, err := intFromValue(gv)
			if err != nil {
				return Handoff{}, fmt.Errorf("%s[%d]: %w", fieldGroupings, i, err)
			}
			if g < 0 || g >= NumGroupings {
				return Handoff{}, fmt.Errorf("%s[%d]: %w: %d", fieldGroupings, i, ErrInvalidGrouping, g)
			}
			h.Groupings = append(h.Groupings, Grouping(g))
		}
	}
	cm, ok := fields[fieldCorrectMeasurements]
	if !ok {
		cm, ok = fields[fieldCorrectMeasurementsAlt]
	}
	if ok {
		list, err := listOf(cm, fieldCorrectMeasurements)
		if err != nil {
			return Handoff{}, err
		}
		h.CorrectMeasurements = make([]int, 0, len(list))
		for i, iv := range list {
			idx, err := intFromValue(iv)
			if err != nil {
				return Handoff{}, fmt.Errorf("%s[%d]: %w", fieldCorrectMeasurements, i, err)
			}
			h.CorrectMeasurements = append(h.CorrectMeasurements, idx)
		}
	}
	if v, ok := fields[fieldCode]; ok {
		code, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Handoff{}, fmt.Errorf("%s: want string, got %T", fieldCode, v.GetKind())
		}
		h.Code = code.StringValue
	}
	return h, nil
}

// MarshalJSON implements json.Marshaler.
func (h Handoff) MarshalJSON() ([]byte, error) {
	s, err := h.ToProto()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Handoff) UnmarshalJSON(data []byte) error {
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return err
	}
	parsed, err := HandoffFromProto(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// SendHandoff writes h to f as a single frame.
func SendHandoff(f *Framer, h Handoff, s *ChannelStats) error {
	pb, err := h.ToProto()
	if err != nil {
		return fmt.Errorf("encoding handoff: %w", err)
	}
	return f.Write(pb, s)
}

// ReceiveHandoff reads a single handoff frame from f.
func ReceiveHandoff(f *Framer, s *ChannelStats) (Handoff, error) {
	pb := new(structpb.Struct)
	if err := f.Read(pb, s); err != nil {
		return Handoff{}, err
	}
	return HandoffFromProto(pb)
}

func listOf(v *structpb.Value, name string) ([]*structpb.Value, error) {
	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%s: want list, got %T", name, v.GetKind())
	}
	return l.ListValue.GetValues(), nil
}

func intFromValue(v *structpb.Value) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("want number, got %T", v.GetKind())
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("want integer, got %v", f)
	}
	return int(f), nil
}

func pairingFromValue(v *structpb.Value) (Pairing, error) {
	outer, err := listOf(v, "pairing")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPairing, err)
	}
	if len(outer) != 2 {
		return 0, fmt.Errorf("%w: want 2 pairs, got %d", ErrInvalidPairing, len(outer))
	}
	var pairs [2][2]int
	for i, pv := range outer {
		inner, err := listOf(pv, "pair")
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPairing, err)
		}
		if len(inner) != 2 {
			return 0, fmt.Errorf("%w: want 2 slots per pair, got %d", ErrInvalidPairing, len(inner))
		}
		for j, sv := range inner {
			slot, err := intFromValue(sv)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidPairing, err)
			}
			pairs[i][j] = slot
		}
	}
	return PairingFromPairs(pairs)
}
