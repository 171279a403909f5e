package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/events"
	invitationdomain "github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
)

func scenarioRequest() Request {
	return Request{
		OrgID:     "org1",
		Email:     "a@x.com",
		FullName:  "A B",
		RoleIDs:   []string{"role1", "role2"},
		InvitedBy: "admin-1",
	}
}

func mustFailure(t *testing.T, err error) *Failure {
	t.Helper()
	if err == nil {
		t.Fatal("Provision succeeded, want failure")
	}
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error %T is not a *Failure: %v", err, err)
	}
	return f
}

func TestProvision_AllStepsSucceed(t *testing.T) {
	f := newFixture(Config{})
	req := scenarioRequest()
	req.Email = "  A@X.com "
	req.AccessGrant = profiledomain.AccessGrant{
		profiledomain.ModuleGrants: {Enabled: true, Permissions: []profiledomain.Permission{"read", "create", "read"}},
	}

	res, err := f.svc.Provision(context.Background(), req)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if res.PrincipalID == "" || res.InvitationID == "" {
		t.Fatalf("result missing ids: %+v", res)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
	if err := security.ValidatePasswordPolicy(res.TemporaryPassword); err != nil {
		t.Errorf("temporary password violates policy: %v", err)
	}

	p := f.identity.byID[res.PrincipalID]
	if p == nil {
		t.Fatal("principal not stored")
	}
	if !p.confirmed {
		t.Error("principal should be email_confirmed")
	}
	if p.email != "a@x.com" {
		t.Errorf("principal email = %q, want normalized", p.email)
	}
	if p.password != res.TemporaryPassword {
		t.Error("principal password should be the returned temporary password")
	}

	inv := f.ledger.only()
	if inv == nil || inv.ID != res.InvitationID {
		t.Fatalf("invitation = %+v, want id %s", inv, res.InvitationID)
	}
	if inv.Status != invitationdomain.StatusAccepted || inv.AcceptedBy != res.PrincipalID {
		t.Errorf("invitation status=%s accepted_by=%s", inv.Status, inv.AcceptedBy)
	}
	if inv.CreatedBy != "admin-1" {
		t.Errorf("invitation created_by = %q", inv.CreatedBy)
	}
	if d := time.Until(inv.ExpiresAt); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("invitation expires in %v, want about 24h", d)
	}

	prof := f.directory.profiles[res.PrincipalID]
	if prof == nil {
		t.Fatal("profile not stored")
	}
	if prof.OrgID != "org1" || prof.FullName != "A B" || prof.Status != profiledomain.StatusActive {
		t.Errorf("profile = %+v", prof)
	}
	if got := prof.AccessGrant[profiledomain.ModuleGrants].Permissions; !slices.Equal(got, []profiledomain.Permission{"create", "read"}) {
		t.Errorf("profile permissions = %v, want normalized", got)
	}

	if got := f.roles.assigned[res.PrincipalID]; !slices.Equal(got, []string{"role1", "role2"}) {
		t.Errorf("assigned roles = %v", got)
	}
	if !slices.Equal(f.audit.actions(), []string{ActionUserProvisioned}) {
		t.Errorf("audit actions = %v", f.audit.actions())
	}
	if !slices.Equal(f.metrics.outcomes, []string{"success"}) {
		t.Errorf("metrics outcomes = %v", f.metrics.outcomes)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.events.events))
	}
	ev := f.events.events[0]
	if ev.Type != events.TypeUserProvisioned || ev.PrincipalID != res.PrincipalID ||
		ev.InvitationID != res.InvitationID || ev.ActorID != "admin-1" || ev.OrgID != "org1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestProvision_PasswordPolicyHoldsAcrossRuns(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 25; i++ {
		req := scenarioRequest()
		req.Email = "user" + string(rune('a'+i)) + "@x.com"
		res, err := f.svc.Provision(context.Background(), req)
		if err != nil {
			t.Fatalf("Provision %d: %v", i, err)
		}
		if len(res.TemporaryPassword) < security.MinTemporaryPasswordLength {
			t.Errorf("password length %d", len(res.TemporaryPassword))
		}
		if err := security.ValidatePasswordPolicy(res.TemporaryPassword); err != nil {
			t.Errorf("run %d: %v", i, err)
		}
	}
}

func TestProvision_ProfileCreationFailsRollsBackEverything(t *testing.T) {
	f := newFixture(Config{})
	f.directory.createErr = errors.New("pq: connection refused to 10.0.0.3")

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationAcceptance {
		t.Errorf("stage = %s, want %s", fl.Stage, StageInvitationAcceptance)
	}
	if !fl.Compensated {
		t.Errorf("compensated = false: %v", fl.CompensationErr)
	}
	if !errors.Is(err, ErrInvitationAcceptanceFailed) {
		t.Error("error should match ErrInvitationAcceptanceFailed")
	}
	if errors.Is(err, ErrCompensationFailed) {
		t.Error("error should not match ErrCompensationFailed")
	}
	if strings.Contains(fl.Message, "10.0.0.3") {
		t.Errorf("message leaks store error: %q", fl.Message)
	}
	if err := f.leftovers(); err != nil {
		t.Errorf("records left after rollback: %v", err)
	}
	if f.directory.deletes != 1 || f.ledger.deletes != 1 || f.identity.deletes != 1 {
		t.Errorf("deletes profile=%d invitation=%d principal=%d, want 1 each",
			f.directory.deletes, f.ledger.deletes, f.identity.deletes)
	}
	if !slices.Equal(f.audit.actions(), []string{ActionUserProvisionFailed}) {
		t.Errorf("audit actions = %v", f.audit.actions())
	}
	if len(f.events.events) != 0 {
		t.Errorf("failed saga published %d events", len(f.events.events))
	}
}

func TestProvision_EmailAlreadyRegistered(t *testing.T) {
	f := newFixture(Config{})
	if _, err := f.identity.CreatePrincipal(context.Background(), "a@x.com", "x", true); err != nil {
		t.Fatal(err)
	}
	f.identity.creates = 0

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageAlreadyExists {
		t.Errorf("stage = %s, want %s", fl.Stage, StageAlreadyExists)
	}
	if !errors.Is(err, ErrAlreadyExists) {
		t.Error("error should match ErrAlreadyExists")
	}
	if !fl.Compensated {
		t.Error("nothing to roll back; compensated should be true")
	}
	if f.identity.deletes != 0 || f.ledger.deletes != 0 || f.directory.deletes != 0 {
		t.Error("no compensation should run for an email collision")
	}
	if f.ledger.only() != nil {
		t.Error("no invitation should be created")
	}
	if f.identity.count() != 1 {
		t.Error("the existing principal must be left alone")
	}
}

func TestProvision_CompensationToleratesAlreadyDeletedPrincipal(t *testing.T) {
	f := newFixture(Config{})
	f.ledger.acceptErr = errors.New("timeout")
	// Another actor removes the principal before rollback reaches it.
	f.identity.onCreate = func(context.Context) {
		for id := range f.identity.byID {
			delete(f.identity.byID, id)
		}
	}

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationAcceptance || !fl.Compensated {
		t.Errorf("failure = %+v, want compensated InvitationAcceptanceFailed", fl)
	}
	if err := f.leftovers(); err != nil {
		t.Error(err)
	}
}

func TestProvision_InvalidRoleIsAWarning(t *testing.T) {
	f := newFixture(Config{})
	req := scenarioRequest()
	req.RoleIDs = []string{"role1", "does-not-exist", "role2", "role1", " "}

	res, err := f.svc.Provision(context.Background(), req)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].RoleID != "does-not-exist" || res.Warnings[0].Reason != roledomain.ReasonUnknownRole {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	if got := f.roles.assigned[res.PrincipalID]; !slices.Equal(got, []string{"role1", "role2"}) {
		t.Errorf("assigned = %v, want the valid roles once each", got)
	}
	if f.directory.profiles[res.PrincipalID] == nil {
		t.Error("user should be active despite the invalid role")
	}
	if f.metrics.roleWarnings != 1 {
		t.Errorf("role warnings metric = %d", f.metrics.roleWarnings)
	}
}

func TestProvision_RoleStoreDownStillSucceeds(t *testing.T) {
	f := newFixture(Config{})
	f.roles.err = errors.New("role store unavailable")

	res, err := f.svc.Provision(context.Background(), scenarioRequest())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("warnings = %+v, want one per requested role", res.Warnings)
	}
	for _, w := range res.Warnings {
		if w.Reason != roledomain.ReasonStoreFailure {
			t.Errorf("warning reason = %q", w.Reason)
		}
	}
	if f.identity.deletes != 0 {
		t.Error("role failure must not roll back the user")
	}
}

func TestProvision_Validation(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Request)
	}{
		{"missing org", func(r *Request) { r.OrgID = "  " }},
		{"missing email", func(r *Request) { r.Email = "" }},
		{"malformed email", func(r *Request) { r.Email = "not-an-email" }},
		{"missing name", func(r *Request) { r.FullName = "" }},
		{"unknown module", func(r *Request) {
			r.AccessGrant = profiledomain.AccessGrant{"payroll": {Enabled: true}}
		}},
		{"unknown permission", func(r *Request) {
			r.AccessGrant = profiledomain.AccessGrant{profiledomain.ModuleHR: {Enabled: true, Permissions: []profiledomain.Permission{"approve"}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})
			req := scenarioRequest()
			tt.mut(&req)

			_, err := f.svc.Provision(context.Background(), req)
			fl := mustFailure(t, err)
			if fl.Stage != StageValidation || !errors.Is(err, ErrValidation) {
				t.Errorf("failure = %v, want ValidationError", err)
			}
			if fl.Message == "" {
				t.Error("validation failure should explain the problem")
			}
			if f.identity.creates != 0 {
				t.Error("no store may be called for an invalid request")
			}
			if len(f.audit.actions()) != 0 {
				t.Errorf("audit actions = %v, want none", f.audit.actions())
			}
		})
	}
}

func TestProvision_IdentityProviderFails(t *testing.T) {
	f := newFixture(Config{})
	f.identity.createErr = errors.New("503 from identity provider")

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageIdentityCreation || !fl.Compensated {
		t.Errorf("failure = %+v", fl)
	}
	if !errors.Is(err, ErrIdentityCreationFailed) || !errors.Is(err, f.identity.createErr) {
		t.Error("error should match the stage sentinel and the cause")
	}
	if f.identity.deletes != 0 {
		t.Error("nothing was created; no delete expected")
	}
}

func TestProvision_PasswordGenerationFails(t *testing.T) {
	f := newFixture(Config{})
	f.svc.generatePassword = func(int) (string, error) { return "", errors.New("entropy exhausted") }

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageIdentityCreation {
		t.Errorf("stage = %s", fl.Stage)
	}
	if f.identity.creates != 0 {
		t.Error("identity provider should not be called")
	}
}

func TestProvision_InvitationCreationFails(t *testing.T) {
	f := newFixture(Config{})
	f.ledger.createErr = errors.New("insert failed")

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationCreation || !fl.Compensated {
		t.Errorf("failure = %+v", fl)
	}
	if !errors.Is(err, ErrInvitationCreationFailed) {
		t.Error("error should match ErrInvitationCreationFailed")
	}
	if f.identity.deletes != 1 || f.ledger.deletes != 1 {
		t.Errorf("deletes principal=%d invitation=%d, want 1/1", f.identity.deletes, f.ledger.deletes)
	}
	if err := f.leftovers(); err != nil {
		t.Error(err)
	}
}

func TestProvision_InvitationLandedThenTimedOutIsRolledBack(t *testing.T) {
	f := newFixture(Config{})
	f.ledger.landedErr = context.DeadlineExceeded

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationCreation {
		t.Errorf("stage = %s, want %s", fl.Stage, StageInvitationCreation)
	}
	if !fl.Compensated {
		t.Errorf("compensated = false: %v", fl.CompensationErr)
	}
	if !strings.Contains(fl.Message, "timed out") {
		t.Errorf("message = %q", fl.Message)
	}
	if err := f.leftovers(); err != nil {
		t.Errorf("records left after rollback: %v", err)
	}

	// The same request succeeds once the stray invitation is gone.
	f.ledger.landedErr = nil
	if _, err := f.svc.Provision(context.Background(), scenarioRequest()); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestProvision_PendingInvitationCollision(t *testing.T) {
	f := newFixture(Config{})
	f.ledger.byToken["existing"] = &invitationdomain.Invitation{
		ID: "inv-old", OrgID: "org1", Email: "a@x.com", Status: invitationdomain.StatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageAlreadyExists || !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("failure = %v, want AlreadyExists", err)
	}
	if !fl.Compensated || f.identity.count() != 0 {
		t.Error("the principal created for this request must be rolled back")
	}
	if _, ok := f.ledger.byToken["existing"]; !ok {
		t.Error("the pre-existing invitation must be left alone")
	}
}

func TestProvision_AcceptFailsDeletesInvitationAndPrincipal(t *testing.T) {
	f := newFixture(Config{})
	f.ledger.acceptErr = invitationdomain.ErrExpired

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationAcceptance || !fl.Compensated {
		t.Errorf("failure = %+v", fl)
	}
	if f.directory.deletes != 0 {
		t.Error("profile was never attempted; no profile delete expected")
	}
	if err := f.leftovers(); err != nil {
		t.Error(err)
	}
}

func TestProvision_CompensationFailureIsSurfaced(t *testing.T) {
	f := newFixture(Config{})
	f.directory.createErr = errors.New("insert failed")
	f.identity.deleteErr = errors.New("identity provider unreachable")

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Compensated {
		t.Fatal("compensated should be false when a delete fails")
	}
	if !errors.Is(err, ErrCompensationFailed) || !errors.Is(err, ErrInvitationAcceptanceFailed) {
		t.Errorf("error should match ErrCompensationFailed and the stage: %v", err)
	}
	if len(fl.Orphans) != 1 || !strings.HasPrefix(fl.Orphans[0], "principal:") {
		t.Errorf("orphans = %v, want the principal", fl.Orphans)
	}
	// The other compensations still ran.
	if f.ledger.only() != nil || len(f.directory.profiles) != 0 {
		t.Error("invitation and profile should still be deleted")
	}
	if !slices.Contains(f.audit.actions(), ActionCompensationFailed) {
		t.Errorf("audit actions = %v, want %s", f.audit.actions(), ActionCompensationFailed)
	}
	if !slices.Equal(f.metrics.compensations, []string{"delete_principal"}) {
		t.Errorf("compensation metrics = %v", f.metrics.compensations)
	}
}

func TestProvision_CancelledBetweenSteps(t *testing.T) {
	f := newFixture(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.identity.onCreate = func(context.Context) { cancel() }

	_, err := f.svc.Provision(ctx, scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationCreation {
		t.Errorf("stage = %s, want the stage that was about to run", fl.Stage)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("error should carry context.Canceled")
	}
	if !fl.Compensated || f.identity.count() != 0 {
		t.Error("principal should be deleted even though the caller cancelled")
	}
}

func TestProvision_CancelledBeforeStart(t *testing.T) {
	f := newFixture(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Provision(ctx, scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageIdentityCreation || f.identity.creates != 0 {
		t.Errorf("failure = %+v, creates = %d", fl, f.identity.creates)
	}
}

func TestProvision_StepTimeout(t *testing.T) {
	f := newFixture(Config{StepTimeout: 20 * time.Millisecond})
	f.ledger.blockOn = "create"

	_, err := f.svc.Provision(context.Background(), scenarioRequest())
	fl := mustFailure(t, err)
	if fl.Stage != StageInvitationCreation {
		t.Errorf("stage = %s", fl.Stage)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("error should carry context.DeadlineExceeded")
	}
	if !strings.Contains(fl.Message, "timed out") {
		t.Errorf("message = %q", fl.Message)
	}
	if f.identity.count() != 0 {
		t.Error("principal should be rolled back after the timeout")
	}
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Stage: StageIdentityCreation, Message: "could not create the identity", Err: errors.New("boom")}
	if got := f.Error(); !strings.Contains(got, "IdentityCreationFailed") || !strings.Contains(got, "boom") {
		t.Errorf("Error() = %q", got)
	}
}
