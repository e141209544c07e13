package model

import (
	"encoding/json"
	"errors"
)

// AnswerKind tags the two answer shapes.
type AnswerKind string

const (
	AnswerKindScalar  AnswerKind = "scalar"
	AnswerKindGrouped AnswerKind = "grouped"
)

// ErrAnswerShape is returned when an answer payload does not match the
// question type it is recorded against.
var ErrAnswerShape = errors.New("answer shape does not match question type")

// AnswerValue is the tagged union of answer shapes: a scalar string for
// simple questions, or an ordered sub-answer map (sub-question index → scalar)
// for matching/completion questions. Exactly one of Scalar/Parts is
// meaningful, selected by Kind.
type AnswerValue struct {
	Kind   AnswerKind        `json:"kind"`
	Scalar string            `json:"value,omitempty"`
	Parts  map[string]string `json:"parts,omitempty"`
}

// ScalarAnswer builds a scalar answer.
func ScalarAnswer(v string) AnswerValue {
	return AnswerValue{Kind: AnswerKindScalar, Scalar: v}
}

// GroupedAnswer builds a grouped answer. The map is copied so later caller
// mutations cannot corrupt a recorded answer (writes are all-or-nothing per
// question).
func GroupedAnswer(parts map[string]string) AnswerValue {
	cp := make(map[string]string, len(parts))
	for k, v := range parts {
		cp[k] = v
	}
	return AnswerValue{Kind: AnswerKindGrouped, Parts: cp}
}

// ParseAnswer decodes a raw client payload into an AnswerValue using the
// question type as the authority. Grouped payloads arrive as a JSON object
// keyed by sub-question index; the payload is never sniffed to guess its
// shape.
func ParseAnswer(qt QuestionType, raw json.RawMessage) (AnswerValue, error) {
	if qt.IsGrouped() {
		var parts map[string]string
		if err := json.Unmarshal(raw, &parts); err != nil {
			return AnswerValue{}, ErrAnswerShape
		}
		return GroupedAnswer(parts), nil
	}

	var scalar string
	if err := json.Unmarshal(raw, &scalar); err != nil {
		// Numeric scalars are accepted and normalized to their literal form.
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return AnswerValue{}, ErrAnswerShape
		}
		return ScalarAnswer(num.String()), nil
	}
	return ScalarAnswer(scalar), nil
}

// WirePayload renders the answer the way the submission endpoint expects:
// the scalar as-is, or the sub-answer map JSON-encoded (the server decodes
// it). encoding/json emits map keys sorted, so the encoding is deterministic.
func (v AnswerValue) WirePayload() string {
	if v.Kind != AnswerKindGrouped {
		return v.Scalar
	}
	b, _ := json.Marshal(v.Parts)
	return string(b)
}
