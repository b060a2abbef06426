package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/utils"
)

const minPasswordLength = 6

// RegisterInput is a self sign-up request
type RegisterInput struct {
	UserName string      `json:"user_name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role"`
}

// AuthService handles sign-up, sign-in and token checks
type AuthService struct {
	db     *gorm.DB
	secret string
	ttl    time.Duration
	log    *zap.Logger
}

// NewAuthService creates an AuthService
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{db: db, secret: secret, ttl: ttl, log: log}
}

// Register creates an account. Farmers get a farm named after them.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	if in.Role == "" {
		in.Role = models.RoleFarmer
	}
	if in.Role == models.RoleAdmin {
		return nil, "", apperr.Authorization("Admin accounts cannot be self-registered")
	}
	user, err := newUser(in.UserName, in.Email, in.Password, in.Phone, in.Role)
	if err != nil {
		return nil, "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createUserWithFarm(tx, user)
	})
	if err != nil {
		return nil, "", err
	}

	token, err := utils.GenerateToken(user, s.secret, s.ttl)
	if err != nil {
		return nil, "", apperr.Internal(err, "sign token")
	}
	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, token, nil
}

// Login checks credentials and returns a fresh token
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", apperr.Authentication("Invalid credentials")
	}
	if err != nil {
		return nil, "", apperr.Internal(err, "load user")
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, "", apperr.Authentication("Invalid credentials")
	}
	if !user.IsActive {
		return nil, "", apperr.Authentication("Account is deactivated")
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		return nil, "", apperr.Internal(err, "update last login")
	}
	user.LastLogin = &now

	token, err := utils.GenerateToken(&user, s.secret, s.ttl)
	if err != nil {
		return nil, "", apperr.Internal(err, "sign token")
	}
	return &user, token, nil
}

// Me returns the caller with their farm
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Farm").First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, dbError(err, "User")
	}
	return &user, nil
}

// Authenticate resolves a bearer token to an active user
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ValidateToken(token, s.secret)
	if err != nil {
		return nil, apperr.Authentication("Invalid or expired token")
	}

	var user models.User
	err = s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Authentication("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if !user.IsActive {
		return nil, apperr.Authentication("Account is deactivated")
	}
	return &user, nil
}

// newUser validates input and hashes the password
func newUser(name, email, password, phone string, role models.Role) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperr.Validation("user_name is required")
	}
	if !validEmail(email) {
		return nil, apperr.Validation("A valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("Password must be at least %d characters", minPasswordLength)
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role %q", role)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	return &models.User{
		UserName: name,
		Email:    email,
		Password: hash,
		Phone:    strings.TrimSpace(phone),
		Role:     role,
		IsActive: true,
	}, nil
}

// createUserWithFarm inserts user and, for farmers, their farm
func createUserWithFarm(tx *gorm.DB, user *models.User) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return apperr.Internal(err, "check email")
	}
	if count > 0 {
		return apperr.Conflict("User already exists with this email")
	}
	if err := tx.Create(user).Error; err != nil {
		return dbError(err, "User")
	}
	if user.Role != models.RoleFarmer {
		return nil
	}
	farm := &models.Farm{
		FarmName: user.UserName + "'s Farm",
		UserID:   user.ID,
		Status:   models.FarmStatusActive,
	}
	if err := tx.Create(farm).Error; err != nil {
		return dbError(err, "Farm")
	}
	user.Farm = farm
	return nil
}
