// Package memory provides an in-memory leave.TxStore for tests and dev.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	users      map[int64]leave.User
	leaves     map[int64]leave.Leave
	leaveOrder []int64
	alarms     []leave.Alarm

	userSeq  int64
	leaveSeq int64
	alarmSeq int64
}

func New() *Memory {
	return &Memory{
		users:  make(map[int64]leave.User),
		leaves: make(map[int64]leave.Leave),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id int64) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id), nil
}

func (m *Memory) getUserLocked(id int64) *leave.User {
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	copied := u
	return &copied
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Active && u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *Memory) SaveUser(_ context.Context, u *leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveUserLocked(u)
	return nil
}

func (m *Memory) saveUserLocked(u *leave.User) {
	if u.ID == 0 {
		m.userSeq++
		u.ID = m.userSeq
	} else if u.ID > m.userSeq {
		m.userSeq = u.ID
	}
	m.users[u.ID] = *u
}

func (m *Memory) SearchUsers(_ context.Context, query string, offset, limit int) ([]leave.User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchUsersLocked(query, offset, limit)
}

func (m *Memory) searchUsersLocked(query string, offset, limit int) ([]leave.User, int, error) {
	q := strings.ToLower(query)
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var matched []leave.User
	for _, id := range ids {
		u := m.users[id]
		if !u.Active {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(u.Username), q) &&
			!strings.Contains(strings.ToLower(u.Email), q) {
			continue
		}
		matched = append(matched, u)
	}

	total := len(matched)
	if offset >= total {
		return []leave.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return append([]leave.User{}, matched[offset:end]...), total, nil
}

// =============================================================================
// LEAVES
// =============================================================================

func (m *Memory) GetLeave(_ context.Context, id int64) (*leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leaves[id]
	if !ok {
		return nil, nil
	}
	copied := l
	return &copied, nil
}

func (m *Memory) SaveLeave(_ context.Context, l *leave.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLeaveLocked(l)
	return nil
}

func (m *Memory) saveLeaveLocked(l *leave.Leave) {
	if l.ID == 0 {
		m.leaveSeq++
		l.ID = m.leaveSeq
		m.leaveOrder = append(m.leaveOrder, l.ID)
	} else if _, ok := m.leaves[l.ID]; !ok {
		if l.ID > m.leaveSeq {
			m.leaveSeq = l.ID
		}
		m.leaveOrder = append(m.leaveOrder, l.ID)
	}
	m.leaves[l.ID] = *l
}

func (m *Memory) ListLeaves(_ context.Context, userID *int64) ([]leave.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []leave.Info
	for _, id := range m.leaveOrder {
		l := m.leaves[id]
		if userID != nil && l.UserID != *userID {
			continue
		}
		username := ""
		if u, ok := m.users[l.UserID]; ok {
			username = u.Username
		}
		infos = append(infos, leave.Info{
			LeaveID:  l.ID,
			UserID:   l.UserID,
			Username: username,
			Type:     l.Type,
			Status:   l.Status,
			Range:    l.Range,
		})
	}
	return infos, nil
}

func (m *Memory) ListLeavesStarting(_ context.Context, day calendar.Date, status leave.Status) ([]leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.Leave
	for _, id := range m.leaveOrder {
		l := m.leaves[id]
		if l.Status == status && l.Range.Start.Equal(day) {
			out = append(out, l)
		}
	}
	return out, nil
}

// =============================================================================
// ALARMS
// =============================================================================

func (m *Memory) SaveAlarm(_ context.Context, a *leave.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveAlarmLocked(a)
	return nil
}

func (m *Memory) saveAlarmLocked(a *leave.Alarm) {
	if a.ID == 0 {
		m.alarmSeq++
		a.ID = m.alarmSeq
	}
	m.alarms = append(m.alarms, *a)
}

func (m *Memory) ListAlarms(_ context.Context, userID int64, status leave.Status) ([]leave.Alarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.Alarm
	for _, a := range m.alarms {
		if a.UserID != userID {
			continue
		}
		l, ok := m.leaves[a.LeaveID]
		if !ok || l.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx executes fn while holding the write lock; on error the pre-fn
// snapshot is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users      map[int64]leave.User
	leaves     map[int64]leave.Leave
	leaveOrder []int64
	alarms     []leave.Alarm
	userSeq    int64
	leaveSeq   int64
	alarmSeq   int64
}

func (m *Memory) snapshot() memorySnapshot {
	users := make(map[int64]leave.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	leaves := make(map[int64]leave.Leave, len(m.leaves))
	for k, v := range m.leaves {
		leaves[k] = v
	}
	return memorySnapshot{
		users:      users,
		leaves:     leaves,
		leaveOrder: append([]int64{}, m.leaveOrder...),
		alarms:     append([]leave.Alarm{}, m.alarms...),
		userSeq:    m.userSeq,
		leaveSeq:   m.leaveSeq,
		alarmSeq:   m.alarmSeq,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.leaves = s.leaves
	m.leaveOrder = s.leaveOrder
	m.alarms = s.alarms
	m.userSeq = s.userSeq
	m.leaveSeq = s.leaveSeq
	m.alarmSeq = s.alarmSeq
}

// txView runs against the parent without re-locking; the parent's write
// lock is already held for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) GetUser(_ context.Context, id int64) (*leave.User, error) {
	return tv.parent.getUserLocked(id), nil
}

func (tv *txView) GetUserByEmail(_ context.Context, email string) (*leave.User, error) {
	for _, u := range tv.parent.users {
		if u.Active && u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (tv *txView) SaveUser(_ context.Context, u *leave.User) error {
	tv.parent.saveUserLocked(u)
	return nil
}

func (tv *txView) SearchUsers(_ context.Context, query string, offset, limit int) ([]leave.User, int, error) {
	return tv.parent.searchUsersLocked(query, offset, limit)
}

func (tv *txView) GetLeave(_ context.Context, id int64) (*leave.Leave, error) {
	l, ok := tv.parent.leaves[id]
	if !ok {
		return nil, nil
	}
	copied := l
	return &copied, nil
}

func (tv *txView) SaveLeave(_ context.Context, l *leave.Leave) error {
	tv.parent.saveLeaveLocked(l)
	return nil
}

func (tv *txView) ListLeaves(ctx context.Context, userID *int64) ([]leave.Info, error) {
	var infos []leave.Info
	for _, id := range tv.parent.leaveOrder {
		l := tv.parent.leaves[id]
		if userID != nil && l.UserID != *userID {
			continue
		}
		username := ""
		if u, ok := tv.parent.users[l.UserID]; ok {
			username = u.Username
		}
		infos = append(infos, leave.Info{
			LeaveID:  l.ID,
			UserID:   l.UserID,
			Username: username,
			Type:     l.Type,
			Status:   l.Status,
			Range:    l.Range,
		})
	}
	return infos, nil
}

func (tv *txView) ListLeavesStarting(_ context.Context, day calendar.Date, status leave.Status) ([]leave.Leave, error) {
	var out []leave.Leave
	for _, id := range tv.parent.leaveOrder {
		l := tv.parent.leaves[id]
		if l.Status == status && l.Range.Start.Equal(day) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (tv *txView) SaveAlarm(_ context.Context, a *leave.Alarm) error {
	tv.parent.saveAlarmLocked(a)
	return nil
}

func (tv *txView) ListAlarms(_ context.Context, userID int64, status leave.Status) ([]leave.Alarm, error) {
	var out []leave.Alarm
	for _, a := range tv.parent.alarms {
		if a.UserID != userID {
			continue
		}
		l, ok := tv.parent.leaves[a.LeaveID]
		if !ok || l.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
