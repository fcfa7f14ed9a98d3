package fakeuserrepo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo keeps users in memory. Returned users are copies.
type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // normalized email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	cp.Email = users.NormalizeEmail(user.Email)
	ur.users[cp.ID] = &cp
	ur.emailIds[cp.Email] = cp.ID
	return nil
}

func (ur *FakeUserRepo) Delete(email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email = users.NormalizeEmail(email)
	userID, ok := ur.emailIds[email]
	if !ok {
		return users.ErrNotFound
	}
	delete(ur.emailIds, email)
	delete(ur.users, userID)
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *ur.users[id]
	return &cp, nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// List returns every user ordered by email
func (ur *FakeUserRepo) List() ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		cp := *v
		userList = append(userList, &cp)
	}
	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Email < userList[j].Email
	})
	return userList, nil
}

func (ur *FakeUserRepo) SetBlocked(email string, blocked bool) error {
	return ur.update(email, func(u *users.User) { u.Blocked = blocked })
}

func (ur *FakeUserRepo) SetVerified(email string, verified bool) error {
	return ur.update(email, func(u *users.User) { u.Verified = verified })
}

func (ur *FakeUserRepo) SetPasswordHash(email, hash string) error {
	return ur.update(email, func(u *users.User) { u.PasswordHash = hash })
}

func (ur *FakeUserRepo) SetLastLogin(email string, at time.Time) error {
	return ur.update(email, func(u *users.User) { u.LastLogin = at })
}

func (ur *FakeUserRepo) update(email string, fn func(*users.User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return users.ErrNotFound
	}
	fn(ur.users[id])
	return nil
}
