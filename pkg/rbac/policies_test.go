package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevoice/accessd/pkg/audit"
	"github.com/carevoice/accessd/pkg/policy"
)

func testPolicy(tenantID string) *policy.Policy {
	return &policy.Policy{
		ID:       "after-hours",
		Name:     "After Hours",
		TenantID: tenantID,
		Mode:     policy.ModeStrict,
		Active:   true,
		Rules: []policy.Rule{{
			ID:        "deny-billing-export",
			Condition: policy.Compare("permission", policy.OpEq, "billing:submit"),
			Action:    policy.ActionDeny,
			Priority:  50,
		}},
	}
}

func TestPolicyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.evaluator.CreatePolicy(ctx, "", testPolicy("clinic-a"))
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), created.CreatedAt)

	got, err := f.evaluator.GetPolicy(ctx, "clinic-a", "after-hours")
	require.NoError(t, err)
	assert.Equal(t, "After Hours", got.Name)

	got.Name = "After Hours v2"
	got.Rules[0].Priority = 60
	updated, err := f.evaluator.UpdatePolicy(ctx, "", got)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.Equal(f.clock.Now()) || updated.UpdatedAt.After(created.CreatedAt))

	listed, err := f.evaluator.PoliciesForTenant(ctx, "clinic-a")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "After Hours v2", listed[0].Name)

	require.NoError(t, f.evaluator.DeletePolicy(ctx, "", "clinic-a", "after-hours"))
	_, err = f.evaluator.GetPolicy(ctx, "clinic-a", "after-hours")
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

func TestCreatePolicyGeneratesID(t *testing.T) {
	f := newFixture(t)
	p := testPolicy("clinic-a")
	p.ID = ""
	created, err := f.evaluator.CreatePolicy(context.Background(), "", p)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestCreatePolicyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testPolicy("")
	_, err := f.evaluator.CreatePolicy(ctx, "", p)
	assert.ErrorIs(t, err, ErrConfiguration)

	p = testPolicy("clinic-a")
	p.Rules[0].Action = "explode"
	_, err = f.evaluator.CreatePolicy(ctx, "", p)
	assert.ErrorIs(t, err, ErrConfiguration)

	p = testPolicy("clinic-a")
	p.Mode = "best-effort"
	_, err = f.evaluator.CreatePolicy(ctx, "", p)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPolicyTenantScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.evaluator.CreatePolicy(ctx, "", testPolicy("clinic-a"))
	require.NoError(t, err)

	// Another tenant cannot see, update or delete it.
	_, err = f.evaluator.GetPolicy(ctx, "clinic-b", "after-hours")
	assert.ErrorIs(t, err, ErrNotFound)

	foreign := testPolicy("clinic-b")
	_, err = f.evaluator.UpdatePolicy(ctx, "", foreign)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.evaluator.DeletePolicy(ctx, "", "clinic-b", "after-hours")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPolicyAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "viewer-1", "system-viewer", "clinic-a", nil)
	f.assign(t, "admin-1", "system-org-admin", "clinic-a", nil)

	_, err := f.evaluator.CreatePolicy(ctx, "viewer-1", testPolicy("clinic-a"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.evaluator.CreatePolicy(ctx, "admin-1", testPolicy("clinic-a"))
	assert.NoError(t, err)
}

func TestPolicyChangesAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.evaluator.CreatePolicy(ctx, "", testPolicy("clinic-a"))
	require.NoError(t, err)
	require.NoError(t, f.evaluator.DeletePolicy(ctx, "", "clinic-a", created.ID))

	records := f.ring.Search(audit.SearchFilter{
		TenantID:  "clinic-a",
		EventType: audit.EventPolicyChange,
	}, 0)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "deleted", records[0].Reason)
	assert.Equal(t, "created", records[1].Reason)
	assert.Equal(t, created.ID, records[0].Metadata["policy_id"])
}

func TestPolicyOperationsWithoutStore(t *testing.T) {
	store := NewMemoryStore()
	ev := NewEvaluator(store, store, DefaultCatalog())

	_, err := ev.CreatePolicy(context.Background(), "", testPolicy("clinic-a"))
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = ev.PoliciesForTenant(context.Background(), "clinic-a")
	assert.ErrorIs(t, err, ErrConfiguration)
}
