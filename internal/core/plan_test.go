package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func testPlan(name string) *Plan {
	p := NewPlan(name, "python run.py")
	p.Inputs = []CommandParameter{{Name: "in", DefaultValue: "data/in.csv", Position: 1}}
	p.Outputs = []CommandParameter{{Name: "out", DefaultValue: "data/out.csv", Position: 2}}
	p.Parameters = []CommandParameter{{Name: "n", DefaultValue: "10", Prefix: "--n="}}
	return p
}

func TestPlan_StructuralHashIgnoresIdentity(t *testing.T) {
	a := testPlan("a")
	b := testPlan("b")
	b.Description = "different"
	b.Inputs[0].Name = "renamed"
	require.NotEqual(t, a.ID, b.ID)
	require.True(t, a.IsSimilarTo(b))
	require.Len(t, a.StructuralHash(), 64)
}

func TestPlan_CopyIsDeep(t *testing.T) {
	p := testPlan("a")
	p.Keywords = []string{"etl"}
	c := p.Copy()
	require.Equal(t, p, c)

	c.Inputs[0].DefaultValue = "other.csv"
	c.Keywords[0] = "changed"
	require.Equal(t, "data/in.csv", p.Inputs[0].DefaultValue)
	require.Equal(t, []string{"etl"}, p.Keywords)
}

func TestPlan_StructuralHashOrderInsensitive(t *testing.T) {
	a := testPlan("a")
	a.Inputs = append(a.Inputs, CommandParameter{DefaultValue: "data/x.csv", Position: 1})
	a.SuccessCodes = []int{1, 0}

	b := testPlan("b")
	b.Inputs = append([]CommandParameter{{DefaultValue: "data/x.csv", Position: 1}}, b.Inputs...)
	b.SuccessCodes = []int{0, 1}
	require.Equal(t, a.StructuralHash(), b.StructuralHash())
}

func TestPlan_StructuralHashDistinguishesShape(t *testing.T) {
	base := testPlan("a")

	cmd := testPlan("b")
	cmd.Command = "python other.py"
	require.False(t, base.IsSimilarTo(cmd))

	out := testPlan("c")
	out.Outputs[0].DefaultValue = "data/other.csv"
	require.False(t, base.IsSimilarTo(out))

	// An input moved to the outputs is a different plan.
	moved := testPlan("d")
	moved.Outputs = append(moved.Outputs, moved.Inputs...)
	moved.Inputs = nil
	require.False(t, base.IsSimilarTo(moved))

	param := testPlan("e")
	param.Parameters[0].DefaultValue = "11"
	require.False(t, base.IsSimilarTo(param))
}

func TestPlan_Paths(t *testing.T) {
	p := testPlan("a")
	require.Equal(t, []string{"data/in.csv"}, p.InputPaths())
	require.Equal(t, []string{"data/out.csv"}, p.OutputPaths())
}

func TestPlan_Validate(t *testing.T) {
	require.NoError(t, testPlan("a").Validate())

	bad := &Plan{Inputs: []CommandParameter{{}}, Outputs: []CommandParameter{{}}}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
	require.Len(t, multierr.Errors(err), 5)
}

func TestActivity_Validate(t *testing.T) {
	a := NewActivity("/plans/1", t0, t0.Add(time.Second))
	a.Usages = []Usage{{Path: "in", Checksum: "c"}}
	require.NoError(t, a.Validate())

	bad := &Activity{StartedAt: t0, EndedAt: t0.Add(-time.Second), Generations: []Generation{{}}}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidActivity)
	require.Len(t, multierr.Errors(err), 4)
}
