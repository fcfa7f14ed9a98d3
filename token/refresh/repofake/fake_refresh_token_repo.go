package refreshrepofake

import (
	"sync"

	"github.com/jrsteele09/go-session-client/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens     map[string]*refresh.StoredRefreshToken
	sessionIDs map[string]string // session ID to current token
	lock       sync.RWMutex
}

func NewFakeRefreshTokenRepo() refresh.Repo {
	return &FakeRefreshTokenRepo{
		tokens:     make(map[string]*refresh.StoredRefreshToken),
		sessionIDs: make(map[string]string),
	}
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	cp := *refreshToken
	tr.tokens[cp.Token] = &cp
	tr.sessionIDs[cp.SessionID] = cp.Token
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return refresh.ErrNotFound
	}
	if tr.sessionIDs[rt.SessionID] == token {
		delete(tr.sessionIDs, rt.SessionID)
	}
	delete(tr.tokens, token)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (tr *FakeRefreshTokenRepo) DeleteBySessionID(sessionID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	token, ok := tr.sessionIDs[sessionID]
	if !ok {
		return refresh.ErrNotFound
	}
	delete(tr.sessionIDs, sessionID)
	delete(tr.tokens, token)
	return nil
}
