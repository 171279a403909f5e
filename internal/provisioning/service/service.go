package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/audit"
	"github.com/circuitpointe-dev/centora-sub011/internal/events"
	invitationdomain "github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
)

// Audit actions written by the service.
const (
	ActionUserProvisioned     = "user_provisioned"
	ActionUserProvisionFailed = "user_provision_failed"
	ActionCompensationFailed  = "compensation_failed"
	auditResource             = "user"
)

// IdentityProvider creates and deletes authentication principals.
// CreatePrincipal returns ErrAlreadyExists (possibly wrapped) on an email collision.
type IdentityProvider interface {
	CreatePrincipal(ctx context.Context, email, password string, emailConfirmed bool) (string, error)
	DeletePrincipal(ctx context.Context, id string) error
}

// DirectoryStore creates and deletes profiles keyed by principal id.
type DirectoryStore interface {
	CreateProfile(ctx context.Context, p *profiledomain.Profile) error
	DeleteProfile(ctx context.Context, principalID string) error
}

// InvitationLedger creates, accepts and deletes invitations. CreateInvitation persists inv under the
// caller-assigned inv.ID and returns the token. DeleteInvitation succeeds when no invitation has that id.
type InvitationLedger interface {
	CreateInvitation(ctx context.Context, inv *invitationdomain.Invitation) (string, error)
	AcceptInvitation(ctx context.Context, token, principalID string) error
	DeleteInvitation(ctx context.Context, id string) error
}

// RoleAssignmentStore links roles to a principal and reports the roles it could not link.
type RoleAssignmentStore interface {
	BulkAssign(ctx context.Context, a roledomain.Assignment) ([]roledomain.Rejection, error)
}

// Recorder receives provisioning outcomes for metrics. Stage is empty on success.
type Recorder interface {
	ObserveProvision(stage string, compensated bool, elapsed time.Duration)
	ObserveCompensationFailure(action string)
	ObserveRoleWarnings(n int)
}

// EventPublisher receives a user.provisioned event for every successful saga. Publish must not block.
type EventPublisher interface {
	Publish(ctx context.Context, ev *events.Event) error
}

// Config holds saga timing. Zero values select the defaults.
type Config struct {
	InvitationTTL       time.Duration
	StepTimeout         time.Duration
	CompensationTimeout time.Duration
	PasswordLength      int
}

const (
	defaultInvitationTTL       = 24 * time.Hour
	defaultStepTimeout         = 10 * time.Second
	defaultCompensationTimeout = 30 * time.Second
	defaultPasswordLength      = 20
)

// ProvisioningService creates a fully active organization user as a saga: principal, invitation,
// acceptance with profile and roles. A failed step rolls back every completed step in reverse order.
// Role assignment is best-effort: rejected roles become warnings on a successful result.
type ProvisioningService struct {
	identity    IdentityProvider
	directory   DirectoryStore
	invitations InvitationLedger
	roles       RoleAssignmentStore
	audit       audit.AuditLogger
	metrics     Recorder
	events      EventPublisher
	log         logrus.FieldLogger
	cfg         Config

	generatePassword func(length int) (string, error)
	now              func() time.Time
}

// NewProvisioningService returns a ProvisioningService. auditLogger and metrics may be nil.
func NewProvisioningService(
	identity IdentityProvider,
	directory DirectoryStore,
	invitations InvitationLedger,
	roles RoleAssignmentStore,
	auditLogger audit.AuditLogger,
	metrics Recorder,
	log logrus.FieldLogger,
	cfg Config,
) *ProvisioningService {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = defaultInvitationTTL
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = defaultCompensationTimeout
	}
	if cfg.PasswordLength < security.MinTemporaryPasswordLength {
		cfg.PasswordLength = defaultPasswordLength
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &ProvisioningService{
		identity:         identity,
		directory:        directory,
		invitations:      invitations,
		roles:            roles,
		audit:            auditLogger,
		metrics:          metrics,
		log:              log,
		cfg:              cfg,
		generatePassword: security.GenerateTemporaryPassword,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents sets the publisher notified of provisioned users and returns s.
func (s *ProvisioningService) WithEvents(p EventPublisher) *ProvisioningService {
	s.events = p
	return s
}

// Provision runs the saga. On failure it returns a *Failure; Compensated reports whether rollback completed.
func (s *ProvisioningService) Provision(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req, err := normalize(req)
	if err != nil {
		return nil, s.fail(ctx, req, &saga{}, StageValidation, err.Error(), err, start)
	}
	entry := s.log.WithFields(logrus.Fields{"org_id": req.OrgID, "invited_by": req.InvitedBy})
	sg := &saga{}

	// Step 1: temporary password.
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, req, sg, StageIdentityCreation, msgCancelled, err, start)
	}
	password, err := s.generatePassword(s.cfg.PasswordLength)
	if err != nil {
		return nil, s.fail(ctx, req, sg, StageIdentityCreation, "could not generate a temporary password", err, start)
	}

	// Step 2: principal.
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, req, sg, StageIdentityCreation, msgCancelled, err, start)
	}
	var principalID string
	err = s.step(ctx, func(ctx context.Context) error {
		var err error
		principalID, err = s.identity.CreatePrincipal(ctx, req.Email, password, true)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, s.fail(ctx, req, sg, StageAlreadyExists, "a user with this email already exists", err, start)
		}
		return nil, s.fail(ctx, req, sg, StageIdentityCreation, describe("could not create the identity", err), err, start)
	}
	sg.push("principal", principalID, func(ctx context.Context) error { return s.identity.DeletePrincipal(ctx, principalID) })
	entry = entry.WithField("principal_id", principalID)

	// Step 3: pending invitation.
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, req, sg, StageInvitationCreation, msgCancelled, err, start)
	}
	inv := &invitationdomain.Invitation{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     req.FullName,
		OrgID:        req.OrgID,
		DepartmentID: req.DepartmentID,
		RoleIDs:      req.RoleIDs,
		AccessGrant:  req.AccessGrant,
		ExpiresAt:    s.now().Add(s.cfg.InvitationTTL),
		CreatedBy:    req.InvitedBy,
	}
	// Registered before the create, like the profile below. A collision deletes nothing since the id is new.
	sg.push("invitation", inv.ID, func(ctx context.Context) error { return s.invitations.DeleteInvitation(ctx, inv.ID) })
	var token string
	err = s.step(ctx, func(ctx context.Context) error {
		var err error
		token, err = s.invitations.CreateInvitation(ctx, inv)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, s.fail(ctx, req, sg, StageAlreadyExists,
				"a pending invitation for this email already exists in the organization", err, start)
		}
		return nil, s.fail(ctx, req, sg, StageInvitationCreation, describe("could not create the invitation", err), err, start)
	}

	// Step 4: accept, create profile, assign roles.
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, req, sg, StageInvitationAcceptance, msgCancelled, err, start)
	}
	if err := s.step(ctx, func(ctx context.Context) error {
		return s.invitations.AcceptInvitation(ctx, token, principalID)
	}); err != nil {
		return nil, s.fail(ctx, req, sg, StageInvitationAcceptance, describe("could not accept the invitation", err), err, start)
	}
	// Registered before the create: a timed-out create may still have landed.
	sg.push("profile", principalID, func(ctx context.Context) error { return s.directory.DeleteProfile(ctx, principalID) })
	profile := &profiledomain.Profile{
		PrincipalID:  principalID,
		OrgID:        req.OrgID,
		FullName:     req.FullName,
		DepartmentID: req.DepartmentID,
		AccessGrant:  req.AccessGrant,
		Status:       profiledomain.StatusActive,
	}
	if err := s.step(ctx, func(ctx context.Context) error { return s.directory.CreateProfile(ctx, profile) }); err != nil {
		return nil, s.fail(ctx, req, sg, StageInvitationAcceptance, describe("could not create the profile", err), err, start)
	}

	warnings := s.assignRoles(ctx, entry, principalID, req)

	res := &Result{
		PrincipalID:       principalID,
		InvitationID:      inv.ID,
		TemporaryPassword: password,
		Warnings:          warnings,
	}
	entry.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"roles":         len(req.RoleIDs),
		"warnings":      len(warnings),
	}).Info("provisioning: user provisioned")
	s.auditEvent(ctx, req.OrgID, req.InvitedBy, ActionUserProvisioned, map[string]any{
		"principal_id":  principalID,
		"invitation_id": inv.ID,
		"warnings":      len(warnings),
	})
	s.publishProvisioned(ctx, req, res)
	if s.metrics != nil {
		s.metrics.ObserveProvision("", true, time.Since(start))
		if len(warnings) > 0 {
			s.metrics.ObserveRoleWarnings(len(warnings))
		}
	}
	return res, nil
}

// assignRoles never fails the saga: a store error rejects every requested role.
func (s *ProvisioningService) assignRoles(ctx context.Context, entry logrus.FieldLogger, principalID string, req Request) []RoleWarning {
	if len(req.RoleIDs) == 0 {
		return nil
	}
	var rejected []roledomain.Rejection
	err := s.step(ctx, func(ctx context.Context) error {
		var err error
		rejected, err = s.roles.BulkAssign(ctx, roledomain.Assignment{
			PrincipalID: principalID,
			OrgID:       req.OrgID,
			RoleIDs:     req.RoleIDs,
			AssignedBy:  req.InvitedBy,
		})
		return err
	})
	if err != nil {
		entry.WithError(err).Warn("provisioning: role assignment failed; user active without roles")
		warnings := make([]RoleWarning, len(req.RoleIDs))
		for i, id := range req.RoleIDs {
			warnings[i] = RoleWarning{RoleID: id, Reason: roledomain.ReasonStoreFailure}
		}
		return warnings
	}
	if len(rejected) == 0 {
		return nil
	}
	warnings := make([]RoleWarning, len(rejected))
	for i, r := range rejected {
		warnings[i] = RoleWarning{RoleID: r.RoleID, Reason: r.Reason}
	}
	entry.WithField("rejected_roles", len(rejected)).Warn("provisioning: some roles were not assigned")
	return warnings
}

// step runs fn with the per-step timeout.
func (s *ProvisioningService) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	return fn(stepCtx)
}

// fail rolls back sg, then logs, audits and records the failure.
func (s *ProvisioningService) fail(ctx context.Context, req Request, sg *saga, stage Stage, message string, cause error, start time.Time) error {
	f := &Failure{Stage: stage, Message: message, Compensated: true, Err: cause}
	if len(sg.steps) > 0 {
		compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
		orphans, compErr := sg.compensate(compCtx, func(kind, id string, err error) {
			s.log.WithFields(logrus.Fields{"org_id": req.OrgID, "kind": kind, "id": id}).WithError(err).
				Error("provisioning: compensating delete failed")
			if s.metrics != nil {
				s.metrics.ObserveCompensationFailure("delete_" + kind)
			}
		})
		cancel()
		if compErr != nil {
			f.Compensated = false
			f.Orphans = orphans
			f.CompensationErr = compErr
			f.Message += "; rollback incomplete, manual cleanup required"
		}
	}

	fields := logrus.Fields{"org_id": req.OrgID, "stage": string(stage), "compensated": f.Compensated}
	if f.Compensated {
		s.log.WithFields(fields).WithError(cause).Warn("provisioning: failed")
	} else {
		fields["orphans"] = f.Orphans
		s.log.WithFields(fields).WithError(f).Error("provisioning: failed and left orphaned records")
		s.auditEvent(ctx, req.OrgID, req.InvitedBy, ActionCompensationFailed, map[string]any{
			"stage": string(stage), "orphans": f.Orphans,
		})
	}
	if stage != StageValidation {
		s.auditEvent(ctx, req.OrgID, req.InvitedBy, ActionUserProvisionFailed, map[string]any{
			"stage": string(stage), "compensated": f.Compensated,
		})
	}
	if s.metrics != nil {
		s.metrics.ObserveProvision(string(stage), f.Compensated, time.Since(start))
	}
	return f
}

func (s *ProvisioningService) auditEvent(ctx context.Context, orgID, userID, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	b, err := json.Marshal(meta)
	if err != nil {
		b = nil
	}
	s.audit.LogEvent(context.WithoutCancel(ctx), orgID, userID, action, auditResource, string(b))
}

func (s *ProvisioningService) publishProvisioned(ctx context.Context, req Request, res *Result) {
	if s.events == nil {
		return
	}
	ev := events.New(events.TypeUserProvisioned, req.OrgID, res.PrincipalID)
	ev.InvitationID = res.InvitationID
	ev.ActorID = req.InvitedBy
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithFields(logrus.Fields{"org_id": req.OrgID, "event_id": ev.ID}).WithError(err).
			Warn("provisioning: event not published")
	}
}

const msgCancelled = "provisioning was cancelled"

func describe(msg string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return msg + " (timed out)"
	case errors.Is(err, context.Canceled):
		return msg + " (cancelled)"
	default:
		return msg
	}
}
