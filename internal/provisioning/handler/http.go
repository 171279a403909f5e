// Package handler exposes the provisioning saga over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/platform/rbac"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/provisioning/service"
	"github.com/circuitpointe-dev/centora-sub011/internal/server/interceptors"
)

// UsersPath is the provisioning endpoint.
const UsersPath = "/v1/provisioning/users"

// Stages reported for requests rejected before the saga runs.
const (
	stageUnauthenticated  = "Unauthenticated"
	stagePermissionDenied = "PermissionDenied"
	stageAuthorization    = "AuthorizationFailed"
	stageInternal         = "InternalError"
)

// Provisioner runs the provisioning saga.
type Provisioner interface {
	Provision(ctx context.Context, req service.Request) (*service.Result, error)
}

// Guard authorizes the caller for the target org and returns the caller's principal id.
type Guard interface {
	RequireOrgAdmin(ctx context.Context, targetOrgID string) (string, error)
}

type Handler struct {
	svc   Provisioner
	guard Guard
	log   logrus.FieldLogger
}

func NewHandler(svc Provisioner, guard Guard, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, guard: guard, log: log}
}

// Routes mounts the provisioning endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post(UsersPath, h.CreateUser)
}

type createUserRequest struct {
	OrgID        string                    `json:"org_id"`
	Email        string                    `json:"email"`
	FullName     string                    `json:"full_name"`
	DepartmentID *string                   `json:"department_id"`
	RoleIDs      []string                  `json:"role_ids"`
	AccessGrant  profiledomain.AccessGrant `json:"access_grant"`
}

type warningBody struct {
	RoleID string `json:"role_id"`
	Reason string `json:"reason"`
}

type successBody struct {
	Status            string        `json:"status"`
	PrincipalID       string        `json:"principal_id"`
	InvitationID      string        `json:"invitation_id"`
	TemporaryPassword string        `json:"temporary_password"`
	Warnings          []warningBody `json:"warnings"`
}

type failureBody struct {
	Status      string `json:"status"`
	Stage       string `json:"stage"`
	Message     string `json:"message"`
	Compensated bool   `json:"compensated"`
}

// CreateUser handles POST /v1/provisioning/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithField("request_id", interceptors.GetRequestID(r.Context()))
	if userID, ok := interceptors.GetUserID(r.Context()); !ok || userID == "" {
		writeFailure(w, http.StatusUnauthorized, stageUnauthenticated, "missing or invalid authorization", true)
		return
	}

	var body createUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, string(service.StageValidation), "request body too large", true)
			return
		}
		writeFailure(w, http.StatusBadRequest, string(service.StageValidation), "malformed JSON body", true)
		return
	}
	orgID := strings.TrimSpace(body.OrgID)
	if orgID == "" {
		writeFailure(w, http.StatusBadRequest, string(service.StageValidation), "org_id is required", true)
		return
	}

	callerID, err := h.guard.RequireOrgAdmin(r.Context(), orgID)
	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		writeFailure(w, http.StatusUnauthorized, stageUnauthenticated, "missing or invalid authorization", true)
		return
	case errors.Is(err, rbac.ErrPermissionDenied):
		writeFailure(w, http.StatusForbidden, stagePermissionDenied, "organization admin required", true)
		return
	case err != nil:
		log.WithError(err).WithField("org_id", orgID).Error("provisioning authorization failed")
		writeFailure(w, http.StatusInternalServerError, stageAuthorization, "authorization could not be evaluated", true)
		return
	}

	req := service.Request{
		OrgID:       orgID,
		Email:       body.Email,
		FullName:    body.FullName,
		RoleIDs:     body.RoleIDs,
		AccessGrant: body.AccessGrant,
		InvitedBy:   callerID,
	}
	if body.DepartmentID != nil {
		req.DepartmentID = *body.DepartmentID
	}

	res, err := h.svc.Provision(r.Context(), req)
	if err != nil {
		f, ok := service.AsFailure(err)
		if !ok {
			log.WithError(err).Error("provisioning returned an unexpected error")
			writeFailure(w, http.StatusInternalServerError, stageInternal, "internal error", false)
			return
		}
		writeFailure(w, statusForFailure(f), string(f.Stage), f.Message, f.Compensated)
		return
	}

	out := successBody{
		Status:            "success",
		PrincipalID:       res.PrincipalID,
		InvitationID:      res.InvitationID,
		TemporaryPassword: res.TemporaryPassword,
		Warnings:          make([]warningBody, 0, len(res.Warnings)),
	}
	for _, wn := range res.Warnings {
		out.Warnings = append(out.Warnings, warningBody{RoleID: wn.RoleID, Reason: wn.Reason})
	}
	writeJSON(w, http.StatusCreated, out)
}

func statusForFailure(f *service.Failure) int {
	switch f.Stage {
	case service.StageValidation:
		return http.StatusBadRequest
	case service.StageAlreadyExists:
		return http.StatusConflict
	}
	if !f.Compensated {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func writeFailure(w http.ResponseWriter, code int, stage, message string, compensated bool) {
	writeJSON(w, code, failureBody{Status: "failure", Stage: stage, Message: message, Compensated: compensated})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
