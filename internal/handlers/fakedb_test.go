package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/idropr/core/internal/repository"
)

// fakeDB is a minimal in-memory repository.DB for handler tests. Tests
// substitute this hand-rolled fake rather than a generated mock, testing
// call sites against small local fakes.
type fakeDB struct {
	mu          sync.Mutex
	usersByName map[string]repository.UserRow
	usersByMail map[string]repository.UserRow
	sessions    map[int64]string
	secrets     map[int64]repository.Secret
	nextID      int64
	pingErr     error
	upsertErr   error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		usersByName: make(map[string]repository.UserRow),
		usersByMail: make(map[string]repository.UserRow),
		sessions:    make(map[int64]string),
		secrets:     make(map[int64]repository.Secret),
	}
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) FindUserByUsername(_ context.Context, username string) (repository.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usersByName[username]
	if !ok {
		return repository.UserRow{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeDB) FindUserByEmail(_ context.Context, email string) (repository.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usersByMail[email]
	if !ok {
		return repository.UserRow{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeDB) UpsertSession(_ context.Context, userID int64, fingerprint string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.sessions[userID] = fingerprint
	return nil
}

func (f *fakeDB) SessionFingerprint(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fp, ok := f.sessions[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return fp, nil
}

func (f *fakeDB) DeleteSession(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userID)
	return nil
}

func (f *fakeDB) CreateSecret(_ context.Context, secret repository.Secret) (repository.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.secrets {
		if s.Name == secret.Name {
			return repository.Secret{}, repository.ErrNameTaken
		}
	}
	f.nextID++
	secret.ID = f.nextID
	secret.CreatedAt = time.Now()
	secret.UpdatedAt = secret.CreatedAt
	f.secrets[secret.ID] = secret
	return secret, nil
}

func (f *fakeDB) GetSecret(_ context.Context, id int64) (repository.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return repository.Secret{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeDB) UpdateSecret(_ context.Context, secret repository.Secret) (repository.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.secrets[secret.ID]
	if !ok {
		return repository.Secret{}, repository.ErrNotFound
	}
	for id, s := range f.secrets {
		if id != secret.ID && s.Name == secret.Name {
			return repository.Secret{}, repository.ErrNameTaken
		}
	}
	secret.CreatedAt = existing.CreatedAt
	secret.UpdatedAt = time.Now()
	f.secrets[secret.ID] = secret
	return secret, nil
}

func (f *fakeDB) DeleteSecret(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.secrets, id)
	return nil
}

func (f *fakeDB) GetSystemSettings(context.Context) (repository.SystemSettings, error) {
	return repository.SystemSettings{ID: 1, Settings: []byte("{}")}, nil
}
