package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neighborhoodFixture() Graph {
	return Build(Input{
		ConfigRecords: []AgentRelationshipRecord{
			{ID: "Lead", DelegatesTo: []string{"scout", "forge"}},
			{ID: "scout", ReportsTo: "Lead"},
			{ID: "forge", ReceivesFrom: []string{"client"}},
		},
		Sources: SourceStatus{Config: SourceState{Available: true}},
	})
}

func TestGraph_Neighborhood(t *testing.T) {
	g := neighborhoodFixture()

	sub, ok := g.Neighborhood("SCOUT")
	require.True(t, ok)

	ids := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"lead", "scout"}, ids)
	for _, e := range sub.Edges {
		assert.True(t, e.From == "scout" || e.To == "scout", "edge %+v does not touch scout", e)
	}
	assert.Len(t, sub.Edges, 2)
	assert.Equal(t, g.Meta, sub.Meta)
}

func TestGraph_NeighborhoodIsolatedAndUnknown(t *testing.T) {
	g := Build(Input{PersistedAgents: []PersistedAgent{{ID: "solo"}}})

	sub, ok := g.Neighborhood("solo")
	require.True(t, ok)
	assert.Len(t, sub.Nodes, 1)
	assert.NotNil(t, sub.Edges)
	assert.Empty(t, sub.Edges)

	_, ok = g.Neighborhood("ghost")
	assert.False(t, ok)
}

func TestGraph_EdgesOfAndWarnings(t *testing.T) {
	g := neighborhoodFixture()

	assert.Len(t, g.EdgesOf("lead", EdgeDelegatesTo), 2)
	assert.Empty(t, g.EdgesOf("lead", EdgeReportsTo))
	assert.Len(t, g.EdgesOf("forge", ""), 1)

	client, ok := g.Node("Client")
	require.True(t, ok)
	assert.Equal(t, NodeExternal, client.Kind)
	assert.Nil(t, client.Capabilities)
}
