package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/events"
	invitationdomain "github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

type memPrincipal struct {
	email     string
	password  string
	confirmed bool
}

type memIdentity struct {
	mu        sync.Mutex
	seq       int
	byID      map[string]*memPrincipal
	createErr error
	deleteErr error
	onCreate  func(ctx context.Context)
	creates   int
	deletes   int
}

func newMemIdentity() *memIdentity {
	return &memIdentity{byID: map[string]*memPrincipal{}}
}

func (m *memIdentity) CreatePrincipal(ctx context.Context, email, password string, confirmed bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return "", m.createErr
	}
	for _, p := range m.byID {
		if p.email == email {
			return "", ErrAlreadyExists
		}
	}
	m.seq++
	id := "principal-" + strconv.Itoa(m.seq)
	m.byID[id] = &memPrincipal{email: email, password: password, confirmed: confirmed}
	if m.onCreate != nil {
		m.onCreate(ctx)
	}
	return id, nil
}

func (m *memIdentity) DeletePrincipal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.byID, id)
	return nil
}

func (m *memIdentity) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memDirectory struct {
	mu        sync.Mutex
	profiles  map[string]*profiledomain.Profile
	createErr error
	deletes   int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{profiles: map[string]*profiledomain.Profile{}}
}

func (m *memDirectory) CreateProfile(ctx context.Context, p *profiledomain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *p
	m.profiles[p.PrincipalID] = &cp
	return nil
}

func (m *memDirectory) DeleteProfile(ctx context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.profiles, principalID)
	return nil
}

type memLedger struct {
	mu        sync.Mutex
	seq       int
	byToken   map[string]*invitationdomain.Invitation
	createErr error
	// landedErr is returned after the invitation was stored, like a write that commits and then times out.
	landedErr error
	acceptErr error
	deleteErr error
	blockOn   string
	deletes   int
}

func newMemLedger() *memLedger {
	return &memLedger{byToken: map[string]*invitationdomain.Invitation{}}
}

func (m *memLedger) CreateInvitation(ctx context.Context, inv *invitationdomain.Invitation) (string, error) {
	if m.blockOn == "create" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	for _, existing := range m.byToken {
		if existing.OrgID == inv.OrgID && existing.Email == inv.Email && existing.Status == invitationdomain.StatusPending {
			return "", ErrAlreadyExists
		}
	}
	m.seq++
	if inv.ID == "" {
		inv.ID = "inv-" + strconv.Itoa(m.seq)
	}
	token := "token-" + strconv.Itoa(m.seq)
	inv.Status = invitationdomain.StatusPending
	cp := *inv
	m.byToken[token] = &cp
	if m.landedErr != nil {
		return "", m.landedErr
	}
	return token, nil
}

func (m *memLedger) AcceptInvitation(ctx context.Context, token, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acceptErr != nil {
		return m.acceptErr
	}
	inv, ok := m.byToken[token]
	if !ok {
		return invitationdomain.ErrNotFound
	}
	if err := inv.AcceptError(time.Now()); err != nil {
		return err
	}
	inv.Status = invitationdomain.StatusAccepted
	inv.AcceptedBy = principalID
	return nil
}

func (m *memLedger) DeleteInvitation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for token, inv := range m.byToken {
		if inv.ID == id {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memLedger) only() *invitationdomain.Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.byToken {
		return inv
	}
	return nil
}

type memRoles struct {
	mu       sync.Mutex
	known    map[string]bool
	assigned map[string][]string
	err      error
}

func newMemRoles(ids ...string) *memRoles {
	known := map[string]bool{}
	for _, id := range ids {
		known[id] = true
	}
	return &memRoles{known: known, assigned: map[string][]string{}}
}

func (m *memRoles) BulkAssign(ctx context.Context, a roledomain.Assignment) ([]roledomain.Rejection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var rejected []roledomain.Rejection
	for _, id := range a.RoleIDs {
		if !m.known[id] {
			rejected = append(rejected, roledomain.Rejection{RoleID: id, Reason: roledomain.ReasonUnknownRole})
			continue
		}
		m.assigned[a.PrincipalID] = append(m.assigned[a.PrincipalID], id)
	}
	return rejected, nil
}

type auditEntry struct {
	orgID, userID, action, metadata string
}

type memAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (m *memAudit) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{orgID: orgID, userID: userID, action: action, metadata: metadata})
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.action
	}
	return out
}

type memRecorder struct {
	mu            sync.Mutex
	outcomes      []string
	compensations []string
	roleWarnings  int
}

func (m *memRecorder) ObserveProvision(stage string, compensated bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stage == "" {
		stage = "success"
	}
	m.outcomes = append(m.outcomes, stage)
}

func (m *memRecorder) ObserveCompensationFailure(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations = append(m.compensations, action)
}

func (m *memRecorder) ObserveRoleWarnings(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleWarnings += n
}

type memEvents struct {
	mu     sync.Mutex
	events []*events.Event
}

func (m *memEvents) Publish(_ context.Context, ev *events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type fixture struct {
	identity  *memIdentity
	directory *memDirectory
	ledger    *memLedger
	roles     *memRoles
	audit     *memAudit
	metrics   *memRecorder
	events    *memEvents
	svc       *ProvisioningService
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		identity:  newMemIdentity(),
		directory: newMemDirectory(),
		ledger:    newMemLedger(),
		roles:     newMemRoles("role1", "role2"),
		audit:     &memAudit{},
		metrics:   &memRecorder{},
		events:    &memEvents{},
	}
	f.svc = NewProvisioningService(f.identity, f.directory, f.ledger, f.roles, f.audit, f.metrics, nil, cfg).
		WithEvents(f.events)
	return f
}

// leftovers reports which store still holds records after a rolled-back saga.
func (f *fixture) leftovers() error {
	var errs []error
	if n := f.identity.count(); n != 0 {
		errs = append(errs, errors.New(strconv.Itoa(n)+" principal(s) left"))
	}
	if inv := f.ledger.only(); inv != nil {
		errs = append(errs, errors.New("invitation "+inv.ID+" left"))
	}
	f.directory.mu.Lock()
	if n := len(f.directory.profiles); n != 0 {
		errs = append(errs, errors.New(strconv.Itoa(n)+" profile(s) left"))
	}
	f.directory.mu.Unlock()
	return errors.Join(errs...)
}
