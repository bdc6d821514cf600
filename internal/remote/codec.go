package remote

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/labsweep/internal/param"
)

// EncodeSet converts a parameter set to the wire form:
//
//	{"parameters": [{"name": ..., "units": ..., "iterated": ..., "value": ...}, ...]}
func EncodeSet(s *param.Set) (*structpb.Struct, error) {
	params := make([]*structpb.Value, 0, s.Len())
	for _, p := range s.Params() {
		value, err := encodeValue(p.Value())
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", p.Name(), err)
		}
		params = append(params, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"name":     structpb.NewStringValue(p.Name()),
				"units":    structpb.NewStringValue(p.Units()),
				"iterated": structpb.NewBoolValue(p.IsIterated()),
				"value":    value,
			},
		}))
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"parameters": structpb.NewListValue(&structpb.ListValue{Values: params}),
		},
	}, nil
}

// DecodeSet is the inverse of EncodeSet. Numbers decode as float64 and
// all-numeric lists as []float64.
func DecodeSet(st *structpb.Struct) (*param.Set, error) {
	list := st.GetFields()["parameters"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("remote: payload has no parameters list")
	}
	s, err := param.NewSet()
	if err != nil {
		return nil, err
	}
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("remote: parameter %d is not an object", i)
		}
		name := fields["name"].GetStringValue()
		value, err := decodeValue(fields["value"])
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", name, err)
		}
		p := param.New(name, value, fields["units"].GetStringValue(),
			param.Iterated(fields["iterated"].GetBoolValue()))
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EncodeSets encodes a batch of sets as a list of structs.
func EncodeSets(sets []*param.Set) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, len(sets))}
	for i, s := range sets {
		st, err := EncodeSet(s)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		out.Values[i] = structpb.NewStructValue(st)
	}
	return out, nil
}

// DecodeSets is the inverse of EncodeSets.
func DecodeSets(list *structpb.ListValue) ([]*param.Set, error) {
	out := make([]*param.Set, len(list.GetValues()))
	for i, v := range list.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("remote: payload %d is not an object", i)
		}
		s, err := DecodeSet(st)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func encodeValue(v any) (*structpb.Value, error) {
	if param.IsSequence(v) {
		elems := param.Elements(v)
		list := &structpb.ListValue{Values: make([]*structpb.Value, len(elems))}
		for i, e := range elems {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			list.Values[i] = ev
		}
		return structpb.NewListValue(list), nil
	}
	switch val := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case string:
		return structpb.NewStringValue(val), nil
	case bool:
		return structpb.NewBoolValue(val), nil
	}
	if x, ok := param.ToFloat64(v); ok {
		return structpb.NewNumberValue(x), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func decodeValue(v *structpb.Value) (any, error) {
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		return kind.NumberValue, nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	case *structpb.Value_ListValue:
		elems := kind.ListValue.GetValues()
		nums := make([]float64, 0, len(elems))
		mixed := make([]any, len(elems))
		numeric := true
		for i, e := range elems {
			d, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			mixed[i] = d
			if x, ok := d.(float64); ok && numeric {
				nums = append(nums, x)
			} else {
				numeric = false
			}
		}
		if numeric {
			return nums, nil
		}
		return mixed, nil
	}
	return nil, fmt.Errorf("unsupported wire value %T", v.GetKind())
}
