package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

func TestDiscoverAllMergesInNameOrder(t *testing.T) {
	a := &fakeCollection{name: "a", docs: []ir.Document{
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("b", ir.A(ir.Int32(1)))),
	}}
	ab := &fakeCollection{name: "a_b", docs: []ir.Document{
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("x", ir.String("y"))),
	}}

	// Submission order must not matter.
	s, err := DiscoverAll(context.Background(), []native.Collection{ab, a}, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a_b_2"}, s.Bases)
	assert.Equal(t, []string{"a", "a_b", "a_b_2"}, s.TableNames())

	arr, _ := s.Table("a_b")
	assert.Equal(t, ir.TableArray, arr.Kind)
	assert.Equal(t, "a", arr.Parent)

	renamed, _ := s.Table("a_b_2")
	assert.Equal(t, ir.TableBase, renamed.Kind)
	assert.Equal(t, "a_b", renamed.Collection)
	for _, c := range renamed.Columns {
		assert.Equal(t, "a_b_2", c.Table)
	}
}

func TestMergeRewritesReferences(t *testing.T) {
	first := discover(t, "x", ir.D(ir.F("_id", ir.Int32(1)), ir.F("tags", ir.A(ir.String("a")))))
	second := discover(t, "x", ir.D(ir.F("_id", ir.Int32(1)), ir.F("tags", ir.A(ir.String("a")))))

	merged := Merge(first, second)

	assert.Equal(t, []string{"x", "x_2"}, merged.Bases)
	child, ok := merged.Table("x_tags_2")
	require.True(t, ok)
	assert.Equal(t, "x_2", child.Parent)
	assert.Equal(t, "x_2", child.ForeignKey.RefTable)

	// The input schema is untouched.
	orig, _ := second.Table("x_tags")
	assert.Equal(t, "x", orig.ForeignKey.RefTable)
}

func TestDiscoverAllJoinsErrors(t *testing.T) {
	boom := errors.New("unreachable")
	colls := []native.Collection{
		&fakeCollection{name: "ok", docs: []ir.Document{ir.D()}},
		&fakeCollection{name: "bad", openErr: boom},
	}

	_, err := DiscoverAll(context.Background(), colls, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStreamError(err))
}
