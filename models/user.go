package models

import (
	"context"
	"errors"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId int       `gorm:"index;not null" json:"company_id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('admin','manager','staff');default:staff" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	CompanyId int      `json:"company_id"`
	Username  string   `json:"username" binding:"required"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Password  string   `json:"password" binding:"required"`
	Role      UserRole `json:"role"`
}

type LoginInfo struct {
	Token     string   `json:"token"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
	CompanyId int      `json:"company_id"`
}

// Session is the redis-backed record behind an issued token.
type Session struct {
	UserId    int      `json:"user_id"`
	CompanyId int      `json:"company_id"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
}

func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func Login(ctx context.Context, db *gorm.DB, username string, password string) (*LoginInfo, error) {
	var user User
	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
	if err != nil {
		return nil, errors.New("invalid username or password")
	}

	err = utils.ComparePassword(user.Password, password)
	if err != nil && errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, errors.New("invalid username or password")
	}
	if err != nil {
		return nil, err
	}

	if !utils.DereferencePtr(user.IsActive) {
		return nil, errors.New("user is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	session := Session{
		UserId:    user.ID,
		CompanyId: user.CompanyId,
		Username:  user.Username,
		Role:      user.Role,
	}
	if err := config.SetRedisObject(utils.SessionCacheKey(token), &session, tokenLifespan()); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:     token,
		Username:  user.Username,
		Role:      user.Role,
		CompanyId: user.CompanyId,
	}, nil
}

func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("no active session")
	}
	if err := config.RemoveRedisKey(utils.SessionCacheKey(token)); err != nil {
		return false, err
	}
	return true, nil
}

// GetSession resolves a bearer token to its session record.
func GetSession(token string) (*Session, error) {
	var session Session
	found, err := config.GetRedisObject(utils.SessionCacheKey(token), &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("session expired or invalid")
	}
	return &session, nil
}

func CreateUser(ctx context.Context, db *gorm.DB, input *NewUser) (*User, error) {
	username := html.EscapeString(strings.TrimSpace(input.Username))
	if username == "" {
		return nil, utils.NewValidationError("username is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("invalid email %q", input.Email)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.NewValidationError("invalid phone number: %v", err)
		}
	}

	// Usernames are globally unique across companies.
	if err := utils.ValidateUnique[User](ctx, 0, "username", username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}

	user := User{
		CompanyId: input.CompanyId,
		Username:  username,
		Name:      input.Name,
		Email:     utils.NilIfEmpty(input.Email),
		Phone:     input.Phone,
		Password:  hashed,
		Role:      role,
		IsActive:  utils.NilIfEmpty(true),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}
