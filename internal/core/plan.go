package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CommandParameter is one declared input, output or parameter of a plan.
// For inputs and outputs DefaultValue is the path pattern.
type CommandParameter struct {
	Name         string `json:"name,omitempty"`
	DefaultValue string `json:"default_value"`
	Position     int    `json:"position,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
}

// Plan is a reusable execution template. A graph stores its own copy on
// insert, so later edits to the caller's value have no effect there.
type Plan struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Command      string             `json:"command"`
	SuccessCodes []int              `json:"success_codes,omitempty"`
	Inputs       []CommandParameter `json:"inputs,omitempty"`
	Outputs      []CommandParameter `json:"outputs,omitempty"`
	Parameters   []CommandParameter `json:"parameters,omitempty"`
	Keywords     []string           `json:"keywords,omitempty"`
}

// NewPlan returns a plan with a fresh id.
func NewPlan(name, command string) *Plan {
	return &Plan{ID: newPlanID(), Name: name, Command: command}
}

// Copy returns a deep copy of p.
func (p *Plan) Copy() *Plan {
	c := *p
	c.SuccessCodes = append([]int(nil), p.SuccessCodes...)
	c.Inputs = append([]CommandParameter(nil), p.Inputs...)
	c.Outputs = append([]CommandParameter(nil), p.Outputs...)
	c.Parameters = append([]CommandParameter(nil), p.Parameters...)
	c.Keywords = append([]string(nil), p.Keywords...)
	return &c
}

func (p *Plan) ObjectID() string   { return p.ID }
func (p *Plan) ObjectType() string { return TypePlan }

func (p *Plan) InputPaths() []string  { return defaultValues(p.Inputs) }
func (p *Plan) OutputPaths() []string { return defaultValues(p.Outputs) }

func defaultValues(params []CommandParameter) []string {
	out := make([]string, 0, len(params))
	for _, c := range params {
		out = append(out, c.DefaultValue)
	}
	return out
}

// IsSimilarTo reports whether both plans run the same command shape with the
// same parameterization. Ids, names and descriptions do not count.
func (p *Plan) IsSimilarTo(o *Plan) bool {
	return p.StructuralHash() == o.StructuralHash()
}

// StructuralHash hashes the command shape of the plan.
//
// Determinism rules:
//   - Success codes are treated as a set and sorted.
//   - Each parameter list is sorted by position, then prefix, then value.
//   - All fields are length-prefixed to avoid ambiguity.
func (p *Plan) StructuralHash() string {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}
	writeCount := func(n int) { writeField([]byte(strconv.Itoa(n))) }

	writeField([]byte(strings.TrimSpace(p.Command)))

	codes := append([]int(nil), p.SuccessCodes...)
	sort.Ints(codes)
	writeCount(len(codes))
	for _, c := range codes {
		writeCount(c)
	}

	for _, params := range [][]CommandParameter{p.Inputs, p.Outputs, p.Parameters} {
		sorted := append([]CommandParameter(nil), params...)
		sort.Slice(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if a.Position != b.Position {
				return a.Position < b.Position
			}
			if a.Prefix != b.Prefix {
				return a.Prefix < b.Prefix
			}
			return a.DefaultValue < b.DefaultValue
		})
		writeCount(len(sorted))
		for _, c := range sorted {
			writeCount(c.Position)
			writeField([]byte(c.Prefix))
			writeField([]byte(c.DefaultValue))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (p *Plan) Validate() error {
	var err error
	if strings.TrimSpace(p.ID) == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidPlan, "id is required"))
	}
	if strings.TrimSpace(p.Name) == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidPlan, "name is required"))
	}
	if strings.TrimSpace(p.Command) == "" {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidPlan, "plan %q: command is required", p.Name))
	}
	for i, in := range p.Inputs {
		if strings.TrimSpace(in.DefaultValue) == "" {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidPlan, "plan %q: inputs[%d] has no path", p.Name, i))
		}
	}
	for i, out := range p.Outputs {
		if strings.TrimSpace(out.DefaultValue) == "" {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidPlan, "plan %q: outputs[%d] has no path", p.Name, i))
		}
	}
	return err
}
