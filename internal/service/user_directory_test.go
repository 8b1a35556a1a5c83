package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

func newTestDirectory(t *testing.T) *UserDirectory {
	t.Helper()
	dir, err := NewUserDirectory(AdminCredential{Username: "admin", Email: "Admin@Example.com", Password: "s3cret!"}, DemoUsers(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	return dir
}

func TestUserDirectory_SeedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := kvstore.New(kvstore.NewMemoryBackend(0), zap.NewNop())
	dir := newTestDirectory(t)

	seeded, err := dir.Seed(ctx, store)
	if err != nil || !seeded {
		t.Fatalf("expected first seed, got %v %v", seeded, err)
	}

	_ = store.Set(ctx, domain.KeyUsers, []domain.User{{ID: "edited"}})
	seeded, err = dir.Seed(ctx, store)
	if err != nil || seeded {
		t.Fatalf("expected no reseed, got %v %v", seeded, err)
	}
	var users []domain.User
	_, _ = store.Get(ctx, domain.KeyUsers, &users)
	if len(users) != 1 || users[0].ID != "edited" {
		t.Fatalf("existing users overwritten: %+v", users)
	}
}

func TestUserDirectory_HashesPasswords(t *testing.T) {
	dir := newTestDirectory(t)
	if len(dir.users) != len(DemoUsers())+1 {
		t.Fatalf("unexpected user count %d", len(dir.users))
	}
	admin := dir.users[0]
	if admin.Role != domain.RoleAdmin || admin.Email != "admin@example.com" {
		t.Fatalf("unexpected admin %+v", admin)
	}
	if admin.PasswordHash == "s3cret!" || bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret!")) != nil {
		t.Fatalf("expected bcrypt hash")
	}
}

func TestUserDirectory_NoAdminWithoutPassword(t *testing.T) {
	dir, err := NewUserDirectory(AdminCredential{Username: "admin"}, nil, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	if len(dir.users) != 0 {
		t.Fatalf("expected no users, got %+v", dir.users)
	}
}

func TestUserDirectory_RejectsInvalidRole(t *testing.T) {
	_, err := NewUserDirectory(AdminCredential{}, []UserFixture{{Username: "x", Role: "owner", Password: "pw"}}, bcrypt.MinCost)
	if err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestAuthenticateLocal(t *testing.T) {
	ctx := context.Background()
	store := kvstore.New(kvstore.NewMemoryBackend(0), zap.NewNop())
	if _, err := newTestDirectory(t).Seed(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name     string
		login    string
		password string
		wantErr  error
		wantID   string
	}{
		{"admin by username", "ADMIN", "s3cret!", nil, "admin"},
		{"admin by email", "admin@example.com", "s3cret!", nil, "admin"},
		{"client", "acme", "Client#2024", nil, "client-1"},
		{"wrong password", "acme", "nope", ErrInvalidCredentials, ""},
		{"unknown", "ghost", "pw", ErrInvalidCredentials, ""},
		{"inactive", "oldclient", "Client#2019", ErrUserInactive, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := authenticateLocal(ctx, store, tc.login, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil {
				if user.ID != tc.wantID || user.PasswordHash != "" {
					t.Fatalf("unexpected user %+v", user)
				}
			}
		})
	}
}
