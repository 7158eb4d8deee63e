package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/models"
)

// Handle is one live application session. Only the Registry creates them.
type Handle struct {
	id        uuid.UUID
	principal models.Principal
	createdAt time.Time
	token     string

	revoked  atomic.Bool
	lastSeen atomic.Int64 // unix nanos

	mu       sync.Mutex
	draining bool
	tasks    map[string]struct{}
}

func newHandle(p models.Principal, now time.Time) (*Handle, error) {
	token, err := generateToken(32)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		id:        uuid.New(),
		principal: p,
		createdAt: now,
		token:     token,
		tasks:     make(map[string]struct{}),
	}
	h.lastSeen.Store(now.UnixNano())
	return h, nil
}

func (h *Handle) ID() uuid.UUID               { return h.id }
func (h *Handle) Principal() models.Principal { return h.principal }
func (h *Handle) CreatedAt() time.Time        { return h.createdAt }

// Token is the ownership token. It stops validating once the handle is revoked.
func (h *Handle) Token() string { return h.token }

// Active reports whether the token is still valid. Background work uses it
// at checkpoints; request paths should ask the Registry instead.
func (h *Handle) Active() bool { return !h.revoked.Load() }

func (h *Handle) LastSeen() time.Time {
	return time.Unix(0, h.lastSeen.Load())
}

func (h *Handle) touch(now time.Time) {
	h.lastSeen.Store(now.UnixNano())
}

func (h *Handle) revoke() {
	h.revoked.Store(true)
}

// AttachTask records a running background task. It fails once the session
// has started draining, so no task can slip in behind an eviction.
func (h *Handle) AttachTask(taskID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining || h.revoked.Load() {
		return ErrSessionNotActive
	}
	h.tasks[taskID] = struct{}{}
	return nil
}

// Ended reports whether the session has started draining or is revoked.
func (h *Handle) Ended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draining || h.revoked.Load()
}

func (h *Handle) DetachTask(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tasks, taskID)
}

// Drain refuses further AttachTask calls and returns the tasks still attached.
func (h *Handle) Drain() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draining = true
	return h.taskIDsLocked()
}

// Tasks returns the IDs of attached background tasks, sorted.
func (h *Handle) Tasks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.taskIDsLocked()
}

func (h *Handle) taskIDsLocked() []string {
	ids := make([]string, 0, len(h.tasks))
	for id := range h.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Handle) String() string {
	return fmt.Sprintf("session %s (%s)", h.id, h.principal.Key())
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
