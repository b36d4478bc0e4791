package core

import (
	"context"
	"fmt"
)

// Operation is a pure transform of the working set. Implementations never
// mutate their input; the caller swaps the result in only on success.
type Operation interface {
	Name() string
	Parameters() map[string]any
	Apply(ctx context.Context, in Dataset) (Outcome, error)
}

// Outcome is the result of applying an Operation.
type Outcome struct {
	Dataset Dataset
	Notes   []string
}

// Adjustment records a parameter that was clamped into its valid range.
// Detail, when set, replaces the numeric description.
type Adjustment struct {
	Parameter string
	Given     int
	Applied   int
	Detail    string
}

func (a Adjustment) String() string {
	if a.Detail != "" {
		return a.Detail
	}
	return fmt.Sprintf("%s clamped from %d to %d", a.Parameter, a.Given, a.Applied)
}

func clampMin(adjustments *[]Adjustment, name string, given, floor int) int {
	if given >= floor {
		return given
	}
	*adjustments = append(*adjustments, Adjustment{Parameter: name, Given: given, Applied: floor})
	return floor
}

func adjustmentNotes(adjustments []Adjustment) []string {
	if len(adjustments) == 0 {
		return nil
	}
	out := make([]string, len(adjustments))
	for i, a := range adjustments {
		out[i] = a.String()
	}
	return out
}

// Pipeline applies operations in registration order.
type Pipeline struct {
	ops []Operation
}

// NewPipeline constructs a pipeline from ops.
func NewPipeline(ops ...Operation) *Pipeline {
	return &Pipeline{ops: append([]Operation(nil), ops...)}
}

// Register appends an operation.
func (p *Pipeline) Register(op Operation) {
	p.ops = append(p.ops, op)
}

// Operations returns the registered operations in order.
func (p *Pipeline) Operations() []Operation {
	return append([]Operation(nil), p.ops...)
}

// Run applies every operation to in and returns the final dataset. An error
// aborts the run and leaves the caller's data untouched.
func (p *Pipeline) Run(ctx context.Context, in Dataset) (Dataset, []string, error) {
	current := in
	var notes []string
	for _, op := range p.ops {
		out, err := op.Apply(ctx, current)
		if err != nil {
			return in, notes, fmt.Errorf("%s: %w", op.Name(), err)
		}
		for _, n := range out.Notes {
			notes = append(notes, op.Name()+": "+n)
		}
		current = out.Dataset
	}
	return current, notes, nil
}
