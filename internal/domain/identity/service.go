package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/internal/platform/db"
)

type Service struct {
	users   UserRepository
	tx      db.TxRunner
	tokens  *auth.TokenIssuer
	revoked *auth.TokenRevocationStore
	logger  zerolog.Logger
}

func NewService(users UserRepository, tx db.TxRunner, tokens *auth.TokenIssuer, revoked *auth.TokenRevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:   users,
		tx:      tx,
		tokens:  tokens,
		revoked: revoked,
		logger:  logger.With().Str("domain", "identity").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email is not valid")
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return "", fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	return hash, err
}

// Register creates a self-service account. Role defaults to PATIENT.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = auth.RolePatient
	}
	if !SelfRegistrable(role) {
		return nil, invalid("role %q cannot be chosen at registration", req.Role)
	}
	return s.create(ctx, req, role)
}

// CreateAdmin creates an ADMIN account. Only the command line calls it.
func (s *Service) CreateAdmin(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.create(ctx, req, auth.RoleAdmin)
}

func (s *Service) create(ctx context.Context, req RegisterRequest, role string) (*User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Phone:        trimOptional(req.Phone),
		IsAvailable:  true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", role).Msg("user registered")
	return u, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), u.Name, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      LoginUser{ID: u.ID, Name: u.Name, Role: u.Role},
	}, nil
}

// Logout revokes the token that authenticated ctx.
func (s *Service) Logout(ctx context.Context) {
	jti, exp := auth.TokenFromContext(ctx)
	if s.revoked != nil {
		s.revoked.Revoke(jti, exp)
	}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		u.Name = name
	}
	if req.Phone != nil {
		u.Phone = trimOptional(req.Phone)
	}
	if req.Password != nil {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	role = strings.ToUpper(role)
	if role != "" && !ValidRole(role) {
		return nil, 0, invalid("unknown role %q", role)
	}
	return s.users.List(ctx, role, limit, offset)
}

func (s *Service) ListAvailableWorkers(ctx context.Context, role string) ([]*User, error) {
	role = strings.ToUpper(role)
	if !IsWorkerRole(role) {
		return nil, invalid("role must be DRIVER or DELIVERY_MAN")
	}
	return s.users.ListAvailable(ctx, role)
}

// SetAvailability lets a worker go on or off duty. Going on duty fails with
// ErrWorkerUnavailable while the worker still holds an active job; only
// completing that job releases them.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsWorker() {
		return nil, ErrNotWorker
	}
	if available {
		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			return s.users.MarkAvailable(ctx, id)
		})
	} else {
		err = s.users.SetAvailability(ctx, id, false)
	}
	if err != nil {
		return nil, err
	}
	u.IsAvailable = available
	s.logger.Debug().Str("user_id", id.String()).Bool("available", available).Msg("availability changed")
	return u, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) (*User, error) {
	if !ValidCoordinates(lat, lng) {
		return nil, invalid("coordinates out of range")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsWorker() {
		return nil, ErrNotWorker
	}
	if err := s.users.SetLocation(ctx, id, lat, lng); err != nil {
		return nil, err
	}
	u.CurrentLatitude, u.CurrentLongitude = &lat, &lng
	return u, nil
}
