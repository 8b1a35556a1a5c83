package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user inactive")
	ErrRateLimited        = errors.New("rate limited")
)

// AdminCredential es el unico admin local, tomado de la configuracion.
type AdminCredential struct {
	Username string
	Email    string
	Password string
}

// UserFixture es un usuario de demo con password en claro; se hashea una vez al arrancar.
type UserFixture struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	Role        domain.Role
	Password    string
	IsActive    bool
	ProjectIDs  []string
}

// DemoUsers devuelve los usuarios de demo del sitio (staff y clientes).
func DemoUsers() []UserFixture {
	return []UserFixture{
		{ID: "staff-1", Username: "pm.rivera", Email: "rivera@example.com", DisplayName: "Laura Rivera", Role: domain.RoleStaff, Password: "Staff#2024", IsActive: true},
		{ID: "client-1", Username: "acme", Email: "ops@acme.example.com", DisplayName: "Acme Holdings", Role: domain.RoleClient, Password: "Client#2024", IsActive: true, ProjectIDs: []string{"p-101", "p-104"}},
		{ID: "client-2", Username: "oldclient", Email: "old@example.com", DisplayName: "Former Client", Role: domain.RoleClient, Password: "Client#2019", IsActive: false, ProjectIDs: []string{"p-090"}},
	}
}

// UserDirectory guarda la lista hasheada que se siembra en cada origen.
type UserDirectory struct {
	users []domain.User
}

// NewUserDirectory hashea el admin configurado y los fixtures con el costo dado.
// Un admin sin password no se agrega.
func NewUserDirectory(admin AdminCredential, fixtures []UserFixture, cost int) (*UserDirectory, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := time.Now().UTC()
	users := make([]domain.User, 0, len(fixtures)+1)

	if strings.TrimSpace(admin.Password) != "" {
		username := strings.TrimSpace(admin.Username)
		if username == "" {
			username = "admin"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), cost)
		if err != nil {
			return nil, err
		}
		users = append(users, domain.User{
			ID:           "admin",
			Username:     username,
			Email:        normalizeEmail(admin.Email),
			DisplayName:  "Administrator",
			Role:         domain.RoleAdmin,
			IsActive:     true,
			PasswordHash: string(hash),
			CreatedAt:    now,
		})
	}

	for _, f := range fixtures {
		if !f.Role.Valid() {
			return nil, errors.New("fixture user has invalid role: " + f.Username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), cost)
		if err != nil {
			return nil, err
		}
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		users = append(users, domain.User{
			ID:           id,
			Username:     strings.TrimSpace(f.Username),
			Email:        normalizeEmail(f.Email),
			DisplayName:  f.DisplayName,
			Role:         f.Role,
			IsActive:     f.IsActive,
			ProjectIDs:   append([]string(nil), f.ProjectIDs...),
			PasswordHash: string(hash),
			CreatedAt:    now,
		})
	}
	return &UserDirectory{users: users}, nil
}

// Seed escribe la lista en `users` solo si el origen todavia no la tiene.
func (d *UserDirectory) Seed(ctx context.Context, store *kvstore.Store) (bool, error) {
	ok, err := store.Has(ctx, domain.KeyUsers)
	if err != nil || ok {
		return false, err
	}
	if err := store.Set(ctx, domain.KeyUsers, d.users); err != nil {
		return false, err
	}
	return true, nil
}

// authenticateLocal busca por username o email en la lista del origen.
func authenticateLocal(ctx context.Context, store *kvstore.Store, login, password string) (domain.User, error) {
	var users []domain.User
	if _, err := store.Get(ctx, domain.KeyUsers, &users); err != nil {
		return domain.User{}, err
	}
	login = strings.ToLower(strings.TrimSpace(login))
	for _, u := range users {
		if strings.ToLower(u.Username) != login && (u.Email == "" || u.Email != login) {
			continue
		}
		if u.PasswordHash == "" {
			return domain.User{}, ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return domain.User{}, ErrInvalidCredentials
		}
		if !u.IsActive {
			return domain.User{}, ErrUserInactive
		}
		return u.Public(), nil
	}
	return domain.User{}, ErrInvalidCredentials
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
