package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/utils"
)

// UserFilter narrows a user listing
type UserFilter struct {
	Role   models.Role
	Search string
	Page   int
	Limit  int
}

// UserDetail is a user with ownership counts
type UserDetail struct {
	models.User
	DeviceCount int64 `json:"device_count"`
}

// CreateUserInput is an admin-created account
type CreateUserInput struct {
	UserName string      `json:"user_name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role"`
}

// UpdateUserInput changes the given fields only
type UpdateUserInput struct {
	UserName *string      `json:"user_name"`
	Email    *string      `json:"email"`
	Phone    *string      `json:"phone"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
	Password *string      `json:"password"`
}

// UserService is the admin user directory
type UserService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserService creates a UserService
func NewUserService(db *gorm.DB, log *zap.Logger) *UserService {
	return &UserService{db: db, log: log}
}

// List returns a page of users
func (s *UserService) List(ctx context.Context, f UserFilter) ([]models.User, Pagination, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := clampLimit(f.Limit, 10, 100)

	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(user_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal(err, "count users")
	}

	var users []models.User
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, Pagination{}, apperr.Internal(err, "list users")
	}
	return users, newPagination(page, limit, total), nil
}

// Get returns a user with their farm and device count
func (s *UserService) Get(ctx context.Context, id string) (*UserDetail, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Farm").First(&user, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "User")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Device{}).Where("user_id = ?", id).Count(&count).Error; err != nil {
		return nil, apperr.Internal(err, "count devices")
	}
	return &UserDetail{User: user, DeviceCount: count}, nil
}

// FindActive loads a user and rejects deactivated accounts
func (s *UserService) FindActive(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "User")
	}
	if !user.IsActive {
		return nil, apperr.Authentication("Account is deactivated")
	}
	return &user, nil
}

// Create adds an account. Farmers get a farm named after them.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleFarmer
	}
	user, err := newUser(in.UserName, in.Email, in.Password, in.Phone, in.Role)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createUserWithFarm(tx, user)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update changes a user's profile
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "User")
	}

	updates := map[string]interface{}{}
	if in.UserName != nil {
		name := strings.TrimSpace(*in.UserName)
		if name == "" {
			return nil, apperr.Validation("user_name cannot be empty")
		}
		updates["user_name"] = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if !validEmail(email) {
			return nil, apperr.Validation("A valid email is required")
		}
		if email != user.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", email, id).Count(&count).Error; err != nil {
				return nil, apperr.Internal(err, "check email")
			}
			if count > 0 {
				return nil, apperr.Conflict("Email already in use")
			}
		}
		updates["email"] = email
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperr.Validation("Invalid role %q", *in.Role)
		}
		updates["role"] = *in.Role
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, apperr.Validation("Password must be at least %d characters", minPasswordLength)
		}
		hash, err := utils.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Internal(err, "hash password")
		}
		updates["password"] = hash
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, dbError(err, "User")
	}
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "User")
	}
	return &user, nil
}

// Delete removes a user with their farm, devices, configurations and device logs.
// Readings and alerts stay as history.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.UserID == id {
		return apperr.Validation("Cannot delete your own account")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return dbError(err, "User")
		}

		var deviceRefs []string
		if err := tx.Model(&models.Device{}).Where("user_id = ?", id).Pluck("id", &deviceRefs).Error; err != nil {
			return apperr.Internal(err, "list devices")
		}
		if err := deleteDeviceRows(tx, deviceRefs); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Farm{}).Error; err != nil {
			return apperr.Internal(err, "delete farms")
		}
		if err := tx.Delete(&user).Error; err != nil {
			return apperr.Internal(err, "delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.UserID))
	return nil
}

// ToggleStatus flips a user's active flag
func (s *UserService) ToggleStatus(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if actor.UserID == id {
		return nil, apperr.Validation("Cannot deactivate your own account")
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "User")
	}
	user.IsActive = !user.IsActive
	if err := s.db.WithContext(ctx).Model(&user).Update("is_active", user.IsActive).Error; err != nil {
		return nil, apperr.Internal(err, "update user")
	}
	return &user, nil
}

// deleteDeviceRows removes devices with their configurations and logs
func deleteDeviceRows(tx *gorm.DB, deviceRefs []string) error {
	if len(deviceRefs) == 0 {
		return nil
	}
	if err := tx.Where("device_ref IN ?", deviceRefs).Delete(&models.DeviceConfiguration{}).Error; err != nil {
		return apperr.Internal(err, "delete configurations")
	}
	if err := tx.Where("device_ref IN ?", deviceRefs).Delete(&models.SystemLog{}).Error; err != nil {
		return apperr.Internal(err, "delete system logs")
	}
	if err := tx.Where("id IN ?", deviceRefs).Delete(&models.Device{}).Error; err != nil {
		return apperr.Internal(err, "delete devices")
	}
	return nil
}
