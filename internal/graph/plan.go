// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package graph

// Plan is an ordered sequence of tiers. Each tier lists instances whose
// dependencies are satisfied by earlier tiers; they may be started in any
// order, including concurrently. Tiers themselves are strictly sequential.
//
// Tier boundaries are a scheduling construct, not a synchronization barrier:
// the supervisor re-checks dependency satisfaction against current process
// state when a tier is reached.
type Plan struct {
	Tiers [][]string
}

// Plan computes the execution plan for the graph using Kahn's algorithm.
//
// The tie-break is stable: within a tier, nodes appear in their declaration
// order. Nodes whose in-degree drops to zero while a tier is collected join
// the next tier, never the current one.
//
// If nodes with unresolved dependencies remain when no node is ready, a
// [CycleError] enumerating the whole residue is returned.
func (g *Graph) Plan() (*Plan, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		indegree[node] = len(g.deps[node])
	}

	emitted := make(map[string]bool, len(g.nodes))
	plan := &Plan{}

	for done := 0; done < len(g.nodes); {
		var tier []string

		for _, node := range g.nodes {
			if !emitted[node] && indegree[node] == 0 {
				tier = append(tier, node)
			}
		}

		if len(tier) == 0 {
			var residue []string

			for _, node := range g.nodes {
				if !emitted[node] {
					residue = append(residue, node)
				}
			}

			return nil, &CycleError{Nodes: residue}
		}

		// Decrement dependents only after the tier is complete so newly
		// ready nodes land in the next tier.
		for _, node := range tier {
			emitted[node] = true

			for _, dependent := range g.requires[node] {
				indegree[dependent]--
			}
		}

		plan.Tiers = append(plan.Tiers, tier)
		done += len(tier)
	}

	return plan, nil
}

// Reverse returns the shutdown plan: the tier sequence reversed, with the
// order within each tier reversed as well. A service is always stopped
// before anything it depends on and after everything that depends on it.
func (p *Plan) Reverse() *Plan {
	reversed := &Plan{Tiers: make([][]string, 0, len(p.Tiers))}

	for idx := len(p.Tiers) - 1; idx >= 0; idx-- {
		tier := p.Tiers[idx]
		names := make([]string, 0, len(tier))

		for jdx := len(tier) - 1; jdx >= 0; jdx-- {
			names = append(names, tier[jdx])
		}

		reversed.Tiers = append(reversed.Tiers, names)
	}

	return reversed
}

// Flatten returns the plan's instances as a single sequence in tier order.
func (p *Plan) Flatten() []string {
	var names []string

	for _, tier := range p.Tiers {
		names = append(names, tier...)
	}

	return names
}
