// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package graph_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/sphinit/internal/graph"
	"github.com/aibor/sphinit/internal/service"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		instances     []*service.Instance
		expectedTiers [][]string
	}{
		{
			name: "single",
			instances: instances(
				inst("a"),
			),
			expectedTiers: [][]string{{"a"}},
		},
		{
			name: "independent keep declaration order",
			instances: instances(
				inst("c"),
				inst("a"),
				inst("b"),
			),
			expectedTiers: [][]string{{"c", "a", "b"}},
		},
		{
			name: "diamond",
			instances: instances(
				inst("a", "b", "c"),
				inst("b", "d"),
				inst("c", "d"),
				inst("d"),
			),
			expectedTiers: [][]string{{"d"}, {"b", "c"}, {"a"}},
		},
		{
			name: "chain with branch",
			instances: instances(
				inst("a", "b"),
				inst("b", "d"),
				inst("c", "d"),
				inst("d", "e"),
				inst("e"),
			),
			expectedTiers: [][]string{{"e"}, {"d"}, {"b", "c"}, {"a"}},
		},
		{
			name: "ready nodes join the next tier",
			instances: instances(
				inst("a", "b"),
				inst("b", "c"),
				inst("c"),
				inst("d"),
			),
			expectedTiers: [][]string{{"c", "d"}, {"b"}, {"a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := graph.Build(tt.instances)
			require.NoError(t, err)

			plan, err := g.Plan()
			require.NoError(t, err)

			assert.Equal(t, tt.expectedTiers, plan.Tiers)
		})
	}
}

func TestPlanFlattenedOrder(t *testing.T) {
	input := instances(
		inst("a", "b", "c"),
		inst("b", "d"),
		inst("c", "d"),
		inst("d", "e"),
		inst("e"),
	)

	g, err := graph.Build(input)
	require.NoError(t, err)

	plan, err := g.Plan()
	require.NoError(t, err)

	flat := plan.Flatten()
	require.ElementsMatch(t, g.Nodes(), flat)

	// Every instance appears after all of its dependencies.
	for _, node := range g.Nodes() {
		for _, dep := range g.Dependencies(node) {
			assert.Less(
				t,
				slices.Index(flat, dep),
				slices.Index(flat, node),
				"%s must come after %s", node, dep,
			)
		}
	}
}

func TestPlanCycle(t *testing.T) {
	tests := []struct {
		name          string
		instances     []*service.Instance
		expectedNodes []string
	}{
		{
			name: "self reference",
			instances: instances(
				inst("a", "a"),
			),
			expectedNodes: []string{"a"},
		},
		{
			name: "three node cycle",
			instances: instances(
				inst("a", "b"),
				inst("b", "c"),
				inst("c", "a"),
			),
			expectedNodes: []string{"a", "b", "c"},
		},
		{
			name: "cycle after valid prefix",
			instances: instances(
				inst("ok"),
				inst("a", "ok", "b"),
				inst("b", "a"),
			),
			expectedNodes: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := graph.Build(tt.instances)
			require.NoError(t, err)

			plan, err := g.Plan()

			var cycleErr *graph.CycleError

			require.ErrorAs(t, err, &cycleErr)
			assert.Equal(t, tt.expectedNodes, cycleErr.Nodes)
			assert.Nil(t, plan)
		})
	}
}

func TestPlanReverse(t *testing.T) {
	plan := &graph.Plan{
		Tiers: [][]string{{"d"}, {"b", "c"}, {"a"}},
	}

	reversed := plan.Reverse()

	assert.Equal(t, [][]string{{"a"}, {"c", "b"}, {"d"}}, reversed.Tiers)

	// The original is untouched.
	assert.Equal(t, [][]string{{"d"}, {"b", "c"}, {"a"}}, plan.Tiers)
}
