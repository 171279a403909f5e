package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
)

// ProvisioningQuery is the rule every provisioning policy must define.
const ProvisioningQuery = "data.centora.provisioning.allow"

// DefaultProvisioningPolicy allows system admins anywhere, and active members of the target org who hold an
// admin role there or whose users module grant permits create.
const DefaultProvisioningPolicy = `package centora.provisioning

default allow := false

allow if {
	some role in input.caller.roles
	role.tier == "system"
	role.is_admin
}

allow if {
	active_member
	some role in input.caller.roles
	role.tier == "client"
	role.org_id == input.target_org_id
	role.is_admin
}

allow if {
	active_member
	grant := input.caller.profile.access_grant.users
	grant.enabled
	"create" in grant.permissions
}

active_member if {
	input.caller.profile.org_id == input.target_org_id
	input.caller.profile.status == "active"
}
`

// ErrNoResult is returned when a policy does not produce a value for ProvisioningQuery.
var ErrNoResult = errors.New("policy query returned no result")

// OPAEvaluator evaluates the provisioning policy with an in-process OPA Rego engine.
// The query is compiled once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultProvisioningPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultProvisioningPolicy
	}
	pq, err := rego.New(
		rego.Query(ProvisioningQuery),
		rego.Module("provisioning.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile provisioning policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile compiles the policy at path, or the default policy when path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provisioning policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// AuthorizeProvisioning reports whether the policy allows in. An undefined result is a deny.
func (e *OPAEvaluator) AuthorizeProvisioning(ctx context.Context, in ProvisioningInput) (bool, error) {
	input, err := buildInput(in)
	if err != nil {
		return false, fmt.Errorf("build input: %w", err)
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval provisioning policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck evaluates the compiled policy against a caller with no roles and no profile.
// Returns nil when the engine produces a result.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	input, err := buildInput(ProvisioningInput{CallerID: "healthcheck", TargetOrgID: "healthcheck"})
	if err != nil {
		return err
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("eval provisioning policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ErrNoResult
	}
	return nil
}

type policyRole struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id"`
	Name    string `json:"name"`
	Tier    string `json:"tier"`
	IsAdmin bool   `json:"is_admin"`
}

type policyProfile struct {
	OrgID       string                    `json:"org_id"`
	Status      string                    `json:"status"`
	AccessGrant profiledomain.AccessGrant `json:"access_grant"`
}

type policyCaller struct {
	ID      string         `json:"id"`
	Profile *policyProfile `json:"profile"`
	Roles   []policyRole   `json:"roles"`
}

type policyInput struct {
	Caller      policyCaller `json:"caller"`
	TargetOrgID string       `json:"target_org_id"`
}

// buildInput renders in as plain JSON values so the policy sees the same shape the API serializes.
func buildInput(in ProvisioningInput) (map[string]any, error) {
	pi := policyInput{
		Caller:      policyCaller{ID: in.CallerID, Roles: []policyRole{}},
		TargetOrgID: in.TargetOrgID,
	}
	if p := in.Profile; p != nil {
		pi.Caller.Profile = &policyProfile{OrgID: p.OrgID, Status: string(p.Status), AccessGrant: p.AccessGrant.Normalized()}
	}
	for _, r := range in.Roles {
		if r == nil {
			continue
		}
		pi.Caller.Roles = append(pi.Caller.Roles, policyRole{
			ID: r.ID, OrgID: r.OrgID, Name: r.Name, Tier: string(r.Tier), IsAdmin: r.IsAdmin,
		})
	}
	b, err := json.Marshal(pi)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
