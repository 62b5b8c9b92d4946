package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/commerce-system/internal/model"
	"github.com/mmeshcher/commerce-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UsersStore описывает контракт доступа к данным пользователей.
type UsersStore interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (string, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
}

// UsersService отвечает за регистрацию и аутентификацию.
type UsersService struct {
	store  UsersStore
	logger *zap.Logger
}

// NewUsersService создаёт сервис пользователей.
func NewUsersService(store UsersStore, logger *zap.Logger) *UsersService {
	return &UsersService{store: store, logger: logger}
}

// RegisterUser регистрирует нового пользователя с ролью клиента.
func (s *UsersService) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	hashed := hashPassword(login, password)
	id, err := s.store.CreateUser(ctx, login, hashed, model.RoleClient)
	if err != nil {
		return nil, err
	}

	return s.store.GetUserByID(ctx, id)
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *UsersService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *UsersService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func hashPassword(login, password string) []byte {
	h := sha256.Sum256([]byte(login + ":" + password))
	return h[:]
}
