package param

// StepDescriptor describes one iterated parameter to a log backend.
type StepDescriptor struct {
	Name   string `json:"name"`
	Units  string `json:"units"`
	Values []any  `json:"values"`
}

// FieldDescriptor describes one result field to a log backend. Vector
// fields carry a sequence per point.
type FieldDescriptor struct {
	Name   string `json:"name"`
	Units  string `json:"units"`
	Vector bool   `json:"vector"`
}

// DeclaredSteps returns the iterated parameters as step descriptors in
// declaration order.
func (s *Set) DeclaredSteps() []StepDescriptor {
	var out []StepDescriptor
	for _, p := range s.params {
		if !p.iterated {
			continue
		}
		out = append(out, StepDescriptor{
			Name:   p.name,
			Units:  p.units,
			Values: p.Domain(),
		})
	}
	return out
}

// StepDescriptors returns the step list in backend order: the last-declared
// iterated parameter (the trace axis) first.
func (s *Set) StepDescriptors() []StepDescriptor {
	return ToOuterConventionStepList(s.DeclaredSteps())
}

// ToOuterConventionStepList converts a declaration-order step list into
// backend order by reversing it. The input is not modified. This is the
// only place where the two orders meet.
func ToOuterConventionStepList(steps []StepDescriptor) []StepDescriptor {
	out := make([]StepDescriptor, len(steps))
	for i, st := range steps {
		out[len(steps)-1-i] = st
	}
	return out
}

// FieldDescriptors describes the set as a result schema. A parameter is a
// vector field exactly when it is iterated.
func (s *Set) FieldDescriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.params))
	for i, p := range s.params {
		out[i] = FieldDescriptor{
			Name:   p.name,
			Units:  p.units,
			Vector: p.iterated,
		}
	}
	return out
}
