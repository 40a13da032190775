package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
)

// Accounts регистрирует и аутентифицирует пользователей.
type Accounts struct {
	repo UserRepository
	cost int
}

// NewAccounts создаёт сервис учётных записей.
func NewAccounts(repo UserRepository) *Accounts {
	return &Accounts{repo: repo, cost: bcrypt.DefaultCost}
}

func validateCredentials(login, password string) error {
	verr := &model.ValidationError{}
	if strings.TrimSpace(login) == "" {
		verr.Add("login", "is required")
	}
	if password == "" {
		verr.Add("password", "is required")
	}
	return verr.OrNil()
}

// Register регистрирует покупателя.
func (a *Accounts) Register(ctx context.Context, login, password string) (int64, error) {
	return a.create(ctx, login, password, model.RoleCustomer)
}

func (a *Accounts) create(ctx context.Context, login, password string, role model.Role) (int64, error) {
	if err := validateCredentials(login, password); err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return a.repo.CreateUser(ctx, strings.TrimSpace(login), hash, role)
}

// Authenticate проверяет логин и пароль и возвращает пользователя.
func (a *Accounts) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	if err := validateCredentials(login, password); err != nil {
		return nil, err
	}

	u, err := a.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return u, nil
}

// Profile возвращает пользователя по идентификатору.
func (a *Accounts) Profile(ctx context.Context, id int64) (*model.User, error) {
	return a.repo.GetUser(ctx, id)
}

// List возвращает всех пользователей.
func (a *Accounts) List(ctx context.Context) ([]model.User, error) {
	return a.repo.ListUsers(ctx)
}

// EnsureAdmin создаёт администратора, если пользователя с таким логином ещё нет.
// Возвращает true, если учётная запись была создана.
func (a *Accounts) EnsureAdmin(ctx context.Context, login, password string) (bool, error) {
	u, err := a.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	switch {
	case err == nil:
		if u.Role != model.RoleAdmin {
			return false, fmt.Errorf("user %s exists and is not an admin", u.Login)
		}
		return false, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return false, err
	}

	if _, err := a.create(ctx, login, password, model.RoleAdmin); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
