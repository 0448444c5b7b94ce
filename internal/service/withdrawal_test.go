package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// approvedApplication drives a standard-flow application all the way to
// APPROVED.
func approvedApplication(t *testing.T, env *testEnv) *repository.Application {
	t.Helper()
	ctx := context.Background()

	app := submit(t, env, &SubmitRequest{
		Title:       "Line 3 upgrade",
		ApplicantID: "emp-9",
		ApproverIDs: []string{"fm-1"},
	})
	steps := []struct {
		actor string
		role  string
	}{
		{"fm-1", RoleFactoryManager},
		{"dir-1", RoleDirector},
		{"mgr-1", RoleManager},
		{"ceo-1", RoleCEO},
	}
	var updated *repository.Application
	var err error
	for _, s := range steps {
		updated, err = env.svc.Approve(ctx, &ActRequest{
			ApplicationID: app.ID, ActorID: s.actor, ActorRole: s.role,
		})
		require.NoError(t, err)
	}
	require.Equal(t, repository.StatusApproved, updated.Status)
	return updated
}

func TestWithdrawLastLevelReopensIt(t *testing.T) {
	env := newTestEnv(t, 100000)
	ctx := context.Background()
	app := approvedApplication(t, env)

	updated, err := env.svc.Withdraw(ctx, &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelCEO,
		ActorID:       "ceo-1",
		ActorRole:     RoleCEO,
		Comment:       "numbers need a second look",
	})
	require.NoError(t, err)
	require.Equal(t, repository.StatusPendingCEO, updated.Status)
	require.Nil(t, updated.CompletedAt)
	require.NotNil(t, updated.CurrentApproverID)
	require.Equal(t, "ceo-1", *updated.CurrentApproverID)

	rows, err := env.store.PendingAtLevel(ctx, app.ID, repository.LevelCEO)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// The reopened level can be decided again.
	final, err := env.svc.Approve(ctx, &ActRequest{
		ApplicationID: app.ID, ActorID: "ceo-1", ActorRole: RoleCEO,
	})
	require.NoError(t, err)
	require.Equal(t, repository.StatusApproved, final.Status)
	require.NotNil(t, final.CompletedAt)
}

func TestWithdrawBlockedByDownstreamDecision(t *testing.T) {
	env := newTestEnv(t, 100000)
	app := approvedApplication(t, env)

	for _, tc := range []struct {
		level repository.Level
		actor string
		role  string
	}{
		{repository.LevelFactory, "fm-1", RoleFactoryManager},
		{repository.LevelDirector, "dir-1", RoleDirector},
		{repository.LevelManager, "mgr-1", RoleManager},
	} {
		_, err := env.svc.Withdraw(context.Background(), &WithdrawRequest{
			ApplicationID: app.ID,
			Level:         tc.level,
			ActorID:       tc.actor,
			ActorRole:     tc.role,
		})
		require.Equal(t, apperror.CodeCannotWithdraw, apperror.CodeOf(err),
			"level %s has downstream decisions and must not be withdrawable", tc.level)
	}
}

func TestWithdrawRequiresOwnDecision(t *testing.T) {
	env := newTestEnv(t, 100000)
	app := approvedApplication(t, env)

	// ceo-2 holds the role but never acted on this application.
	_, err := env.svc.Withdraw(context.Background(), &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelCEO,
		ActorID:       "ceo-2",
		ActorRole:     RoleCEO,
	})
	require.Equal(t, apperror.CodeCannotWithdraw, apperror.CodeOf(err))
}

func TestWithdrawRoleMustMatchLevel(t *testing.T) {
	env := newTestEnv(t, 100000)
	app := approvedApplication(t, env)

	_, err := env.svc.Withdraw(context.Background(), &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelCEO,
		ActorID:       "mgr-1",
		ActorRole:     RoleManager,
	})
	require.Equal(t, apperror.CodeForbidden, apperror.CodeOf(err))
}

func TestWithdrawOnlyFromApproved(t *testing.T) {
	env := newTestEnv(t, 100000)
	app := submit(t, env, &SubmitRequest{Title: "rigs", ApplicantID: "emp-9"})

	_, err := env.svc.Withdraw(context.Background(), &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelFactory,
		ActorID:       "fm-1",
		ActorRole:     RoleFactoryManager,
	})
	require.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err))
}

func TestWithdrawUnknownLevel(t *testing.T) {
	env := newTestEnv(t, 100000)
	app := approvedApplication(t, env)

	_, err := env.svc.Withdraw(context.Background(), &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.Level("INTERN"),
		ActorID:       "fm-1",
		ActorRole:     RoleFactoryManager,
	})
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))
}

func TestWithdrawShortChainMiddleLevel(t *testing.T) {
	env := newTestEnv(t, 100000)
	ctx := context.Background()

	app := submit(t, env, &SubmitRequest{
		Title:       "Feasibility of site B",
		Flow:        "feasibility",
		ApplicantID: "emp-4",
	})
	_, err := env.svc.Approve(ctx, &ActRequest{ApplicationID: app.ID, ActorID: "dir-1", ActorRole: RoleDirector})
	require.NoError(t, err)
	updated, err := env.svc.Approve(ctx, &ActRequest{ApplicationID: app.ID, ActorID: "mgr-1", ActorRole: RoleManager})
	require.NoError(t, err)
	require.Equal(t, repository.StatusApproved, updated.Status)

	// The director cannot withdraw past the manager's decision...
	_, err = env.svc.Withdraw(ctx, &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelDirector,
		ActorID:       "dir-1",
		ActorRole:     RoleDirector,
	})
	require.Equal(t, apperror.CodeCannotWithdraw, apperror.CodeOf(err))

	// ...but the manager, last to act, can.
	reopened, err := env.svc.Withdraw(ctx, &WithdrawRequest{
		ApplicationID: app.ID,
		Level:         repository.LevelManager,
		ActorID:       "mgr-1",
		ActorRole:     RoleManager,
	})
	require.NoError(t, err)
	require.Equal(t, repository.StatusPendingManager, reopened.Status)
}
