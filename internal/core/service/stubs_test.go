package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/demopark/accounts/internal/core/domain"
)

// ---------------------------------------------------------------------------
// In-memory stub repository
// ---------------------------------------------------------------------------

type stubAccountRepo struct {
	mu          sync.Mutex
	byID        map[int64]*domain.Account
	nextID      int64
	insertErr   error // if set, Insert returns this error
	updateCalls int

	afterRoleRead func(username string) // runs after FindRoleByUsername reads the store
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{byID: make(map[int64]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func (r *stubAccountRepo) Insert(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	for _, existing := range r.byID {
		if existing.Username == a.Username {
			return nil, &domain.UniqueViolationError{Field: "username"}
		}
	}
	r.nextID++
	stored := cloneAccount(a)
	stored.ID = r.nextID
	r.byID[stored.ID] = stored
	return cloneAccount(stored), nil
}

func (r *stubAccountRepo) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) FindRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	a, err := r.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if r.afterRoleRead != nil {
		r.afterRoleRead(username)
	}
	return a.Role, nil
}

func (r *stubAccountRepo) ListAll(_ context.Context) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneAccount(r.byID[id]))
	}
	return out, nil
}

func (r *stubAccountRepo) Update(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	r.byID[a.ID] = cloneAccount(a)
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) UpdateWith(_ context.Context, id int64, fn func(*domain.Account) error) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	working := cloneAccount(a)
	if err := fn(working); err != nil {
		return nil, err
	}
	r.byID[id] = cloneAccount(working)
	return working, nil
}

func (r *stubAccountRepo) Ping(context.Context) error  { return nil }
func (r *stubAccountRepo) Close(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Stub hasher: salted with a counter so equal inputs give different hashes.
// ---------------------------------------------------------------------------

type stubHasher struct {
	mu      sync.Mutex
	counter int
	hashErr error
}

func (h *stubHasher) Hash(plaintext string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter++
	return fmt.Sprintf("stub$%d$%s", h.counter, plaintext), nil
}

func (h *stubHasher) Verify(plaintext, hash string) bool {
	parts := strings.SplitN(hash, "$", 3)
	if len(parts) != 3 || parts[0] != "stub" {
		return false
	}
	return parts[2] == plaintext
}

// ---------------------------------------------------------------------------
// Stub role cache
// ---------------------------------------------------------------------------

type stubRoleCache struct {
	roles       map[string]domain.Role
	getErr      error
	setErr      error
	invalidated []string
}

func newStubRoleCache() *stubRoleCache {
	return &stubRoleCache{roles: make(map[string]domain.Role)}
}

func (c *stubRoleCache) Get(_ context.Context, username string) (domain.Role, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	r, ok := c.roles[username]
	return r, ok, nil
}

func (c *stubRoleCache) Set(_ context.Context, username string, role domain.Role) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.roles[username] = role
	return nil
}

func (c *stubRoleCache) SetIfAbsent(_ context.Context, username string, role domain.Role) error {
	if c.setErr != nil {
		return c.setErr
	}
	if _, ok := c.roles[username]; !ok {
		c.roles[username] = role
	}
	return nil
}

func (c *stubRoleCache) Invalidate(_ context.Context, username string) error {
	c.invalidated = append(c.invalidated, username)
	delete(c.roles, username)
	return nil
}

// ---------------------------------------------------------------------------
// Stub token issuer
// ---------------------------------------------------------------------------

type stubIssuer struct {
	ttl      time.Duration
	issueErr error
	issued   []domain.AuthToken
}

func (i *stubIssuer) Issue(subject string, role domain.Role, now time.Time) (*domain.AuthToken, error) {
	if i.issueErr != nil {
		return nil, i.issueErr
	}
	tok := domain.AuthToken{
		Value:     "token-for-" + subject,
		Subject:   subject,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	i.issued = append(i.issued, tok)
	return &tok, nil
}

var errBoom = errors.New("boom")

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
