// Package memory is an in-process repository.Store used by tests and by the
// "memory://" development DSN. Transactions serialize on one lock and roll
// back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"examprep/backend/internal/models"
	"examprep/backend/internal/repository"
)

type state struct {
	users    map[string]models.User
	sessions map[string]models.Session
	now      func() time.Time
}

func (st *state) clone() *state {
	out := &state{
		users:    make(map[string]models.User, len(st.users)),
		sessions: make(map[string]models.Session, len(st.sessions)),
		now:      st.now,
	}
	for id, u := range st.users {
		out.users[id] = cloneUser(u)
	}
	for id, s := range st.sessions {
		out.sessions[id] = s
	}
	return out
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			users:    map[string]models.User{},
			sessions: map[string]models.Session{},
			now:      time.Now,
		},
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserStore {
	return users{s}
}

func (s *Store) Sessions() repository.SessionStore {
	return sessions{s}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&Store{mu: s.mu, st: s.st, inTx: true}); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

// SessionsOf returns every session row of userID, for assertions in tests.
func (s *Store) SessionsOf(userID string) []models.Session {
	defer s.lock()()
	out := []models.Session{}
	for _, sess := range s.st.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.Before(out[j].LoginTime) })
	return out
}

func cloneUser(u models.User) models.User {
	if u.Permissions != nil {
		perms := make(models.Permissions, len(u.Permissions))
		for page, perm := range u.Permissions {
			perm.Functions = append([]string(nil), perm.Functions...)
			perms[page] = perm
		}
		u.Permissions = perms
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, user models.User) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.users {
		switch {
		case existing.Email == user.Email:
			return &repository.DuplicateError{Field: repository.FieldEmail}
		case existing.Username == user.Username:
			return &repository.DuplicateError{Field: repository.FieldUsername}
		case existing.Phone == user.Phone:
			return &repository.DuplicateError{Field: repository.FieldPhone}
		}
	}
	now := r.s.st.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.st.users[user.ID] = cloneUser(user)
	return nil
}

func (r users) FindConflict(_ context.Context, username, email, phone string) (models.User, error) {
	defer r.s.lock()()
	var byUsername, byPhone *models.User
	for _, u := range r.s.st.users {
		u := u
		switch {
		case u.Email == email:
			return cloneUser(u), nil
		case u.Username == username && byUsername == nil:
			byUsername = &u
		case u.Phone == phone && byPhone == nil:
			byPhone = &u
		}
	}
	if byUsername != nil {
		return cloneUser(*byUsername), nil
	}
	if byPhone != nil {
		return cloneUser(*byPhone), nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r users) FindActiveByEmail(_ context.Context, email string) (models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.Email == email && u.IsActive {
			return cloneUser(u), nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r users) GetByID(_ context.Context, id string) (models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r users) LockByID(_ context.Context, id string) (bool, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return false, repository.ErrUserNotFound
	}
	return u.IsActive, nil
}

func (r users) sorted() []models.User {
	out := make([]models.User, 0, len(r.s.st.users))
	for _, u := range r.s.st.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r users) List(_ context.Context, limit, offset int) ([]models.User, int, error) {
	defer r.s.lock()()
	all := r.sorted()
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r users) Search(_ context.Context, term string) ([]models.User, error) {
	defer r.s.lock()()
	term = strings.ToLower(term)
	out := []models.User{}
	for _, u := range r.sorted() {
		if strings.Contains(strings.ToLower(u.Username), term) ||
			strings.Contains(strings.ToLower(u.Email), term) ||
			strings.Contains(strings.ToLower(u.Phone), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r users) update(id string, fn func(u *models.User)) (models.User, error) {
	u, ok := r.s.st.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = r.s.st.now()
	r.s.st.users[id] = u
	return cloneUser(u), nil
}

func (r users) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	defer r.s.lock()()
	_, err := r.update(id, func(u *models.User) { u.LastLogin = &at })
	return err
}

func (r users) UpdateStatus(_ context.Context, id string, active bool) error {
	defer r.s.lock()()
	_, err := r.update(id, func(u *models.User) { u.IsActive = active })
	return err
}

func (r users) UpdateAccess(_ context.Context, id string, access repository.UserAccess) (models.User, error) {
	defer r.s.lock()()
	return r.update(id, func(u *models.User) {
		if access.Role != nil {
			u.Role = *access.Role
		}
		if access.Permissions != nil {
			u.Permissions = cloneUser(models.User{Permissions: access.Permissions}).Permissions
		}
	})
}

// Delete also drops the user's sessions, matching the ON DELETE CASCADE
// foreign key of the Postgres schema.
func (r users) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	if _, ok := r.s.st.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.s.st.users, id)
	for sid, sess := range r.s.st.sessions {
		if sess.UserID == id {
			delete(r.s.st.sessions, sid)
		}
	}
	return nil
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, session models.Session) error {
	defer r.s.lock()()
	if _, ok := r.s.st.users[session.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	if session.IsActive {
		for _, existing := range r.s.st.sessions {
			if existing.IsActive && existing.UserID == session.UserID {
				return repository.ErrActiveSessionExists
			}
		}
	}
	r.s.st.sessions[session.ID] = session
	return nil
}

func (r sessions) find(match func(models.Session) bool) (models.Session, error) {
	var (
		found models.Session
		ok    bool
	)
	for _, sess := range r.s.st.sessions {
		if match(sess) && (!ok || sess.LastActivity.After(found.LastActivity)) {
			found, ok = sess, true
		}
	}
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return found, nil
}

func (r sessions) FindActiveByDevice(_ context.Context, userID, deviceID string) (models.Session, error) {
	defer r.s.lock()()
	return r.find(func(s models.Session) bool {
		return s.IsActive && s.UserID == userID && s.DeviceID == deviceID
	})
}

func (r sessions) FindActiveByToken(_ context.Context, userID, token string) (models.Session, error) {
	defer r.s.lock()()
	return r.find(func(s models.Session) bool {
		return s.IsActive && s.UserID == userID && s.Token == token
	})
}

func (r sessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	defer r.s.lock()()
	out := []models.Session{}
	for _, sess := range r.s.st.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	return out, nil
}

func (r sessions) RotateToken(_ context.Context, id, token string, at time.Time) error {
	defer r.s.lock()()
	sess, ok := r.s.st.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	sess.Token = token
	sess.LastActivity = at
	r.s.st.sessions[id] = sess
	return nil
}

func (r sessions) Touch(_ context.Context, id string, at time.Time) error {
	defer r.s.lock()()
	sess, ok := r.s.st.sessions[id]
	if !ok || !sess.IsActive {
		return repository.ErrSessionNotFound
	}
	sess.LastActivity = at
	r.s.st.sessions[id] = sess
	return nil
}

func (r sessions) closeWhere(match func(models.Session) bool, at time.Time, forced *bool) int64 {
	var n int64
	for id, sess := range r.s.st.sessions {
		if !sess.IsActive || !match(sess) {
			continue
		}
		sess.IsActive = false
		sess.LogoutTime = &at
		if forced != nil {
			sess.ForcedLogout = *forced
		}
		r.s.st.sessions[id] = sess
		n++
	}
	return n
}

func (r sessions) CloseByToken(_ context.Context, token string, at time.Time) (int64, error) {
	defer r.s.lock()()
	return r.closeWhere(func(s models.Session) bool { return s.Token == token }, at, nil), nil
}

func (r sessions) CloseActiveByUser(_ context.Context, userID string, at time.Time, forced bool) (int64, error) {
	defer r.s.lock()()
	return r.closeWhere(func(s models.Session) bool { return s.UserID == userID }, at, &forced), nil
}

func (r sessions) CloseIdle(_ context.Context, idleSince time.Time, at time.Time) (int64, error) {
	defer r.s.lock()()
	return r.closeWhere(func(s models.Session) bool { return s.LastActivity.Before(idleSince) }, at, nil), nil
}

func (r sessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, sess := range r.s.st.sessions {
		if sess.UserID == userID {
			delete(r.s.st.sessions, id)
			n++
		}
	}
	return n, nil
}
