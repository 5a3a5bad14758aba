package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/schema"
)

func mustSchema(t *testing.T, entities []schema.Entity) *schema.Schema {
	t.Helper()
	s := &schema.Schema{Entities: entities}
	s.Normalize()
	return s
}

// S1 — acyclic three-entity import: currency, businessunit(→currency),
// account(→businessunit). Expect three singleton tiers in dependency
// order and no deferred fields.
func TestPlan_AcyclicChainProducesOrderedTiers(t *testing.T) {
	s := mustSchema(t, []schema.Entity{
		{LogicalName: "currency"},
		{LogicalName: "businessunit", Fields: []schema.Field{
			{LogicalName: "transactioncurrencyid", Type: schema.FieldLookup, TargetEntity: "currency"},
		}},
		{LogicalName: "account", Fields: []schema.Field{
			{LogicalName: "owninbusinessunit", Type: schema.FieldLookup, TargetEntity: "businessunit"},
		}},
	})

	plan := Plan(s)

	require.Len(t, plan.Tiers, 3)
	assert.Equal(t, []string{"currency"}, plan.Tiers[0])
	assert.Equal(t, []string{"businessunit"}, plan.Tiers[1])
	assert.Equal(t, []string{"account"}, plan.Tiers[2])
	assert.Empty(t, plan.DeferredFields)
}

// S2 — two-entity cycle: account(primarycontact→contact),
// contact(parentaccount→account). Single tier {account, contact};
// ordering account < contact lexically, so the edge account→contact
// is deferred on account (account precedes contact).
func TestPlan_TwoEntityCycleDefersLowerOrderedEdge(t *testing.T) {
	s := mustSchema(t, []schema.Entity{
		{LogicalName: "account", Fields: []schema.Field{
			{LogicalName: "primarycontactid", Type: schema.FieldLookup, TargetEntity: "contact"},
		}},
		{LogicalName: "contact", Fields: []schema.Field{
			{LogicalName: "parentaccountid", Type: schema.FieldLookup, TargetEntity: "account"},
		}},
	})

	plan := Plan(s)

	require.Len(t, plan.Tiers, 1)
	assert.ElementsMatch(t, []string{"account", "contact"}, plan.Tiers[0])
	assert.Equal(t, []string{"primarycontactid"}, plan.DeferredFields["account"])
	assert.Empty(t, plan.DeferredFields["contact"])
}

func TestPlan_SelfEdgeAlwaysDeferred(t *testing.T) {
	s := mustSchema(t, []schema.Entity{
		{LogicalName: "account", Fields: []schema.Field{
			{LogicalName: "parentaccountid", Type: schema.FieldLookup, TargetEntity: "account"},
		}},
	})

	plan := Plan(s)

	require.Len(t, plan.Tiers, 1)
	assert.Equal(t, []string{"parentaccountid"}, plan.DeferredFields["account"])
}

// S6 — planner determinism: repeated calls on the same schema produce
// byte-identical plans.
func TestPlan_IsDeterministicAcrossRuns(t *testing.T) {
	s := mustSchema(t, []schema.Entity{
		{LogicalName: "account", Fields: []schema.Field{
			{LogicalName: "primarycontactid", Type: schema.FieldLookup, TargetEntity: "contact"},
		}},
		{LogicalName: "contact", Fields: []schema.Field{
			{LogicalName: "parentaccountid", Type: schema.FieldLookup, TargetEntity: "account"},
		}},
		{LogicalName: "currency"},
	})

	first := Plan(s)
	for i := 0; i < 10; i++ {
		again := Plan(s)
		assert.Equal(t, first.Tiers, again.Tiers)
		assert.Equal(t, first.DeferredFields, again.DeferredFields)
	}
}

func TestPlan_M2MRelationshipsSurfaceInTail(t *testing.T) {
	s := mustSchema(t, []schema.Entity{
		{LogicalName: "account", Relationships: []schema.Relationship{
			{Name: "account_contacts", EntityA: "account", EntityB: "contact", IsManyToMany: true},
		}},
		{LogicalName: "contact"},
	})

	plan := Plan(s)
	require.Len(t, plan.M2M, 1)
	assert.Equal(t, "account_contacts", plan.M2M[0].Name)
}
