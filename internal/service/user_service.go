// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/hash"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/token"
)

var errInvalidCredentials = apperr.New(apperr.Unauthorized, "Invalid credentials.")

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Create(ctx context.Context, username, password string, superuser bool) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetPassword(ctx context.Context, username, password string) error
	Delete(ctx context.Context, username string) error
	Login(ctx context.Context, username, password string) (accessToken, refreshToken string, err error)
	Logout(ctx context.Context, tokenString string) error
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	GetProfile(ctx context.Context, username string) (*model.User, error)
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	store      *repository.Store
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(store *repository.Store, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		store:      store,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

// Create 创建用户，由命令行调用。没有公开的注册接口。
func (s *userService) Create(ctx context.Context, username, password string, superuser bool) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.InvalidOp("Username and password are required.")
	}
	users := s.store.WithContext(ctx).Users()

	// 1. 检查用户名是否已存在
	_, err := users.FindByUsername(username)
	if err == nil {
		return nil, apperr.InvalidOp("Username already exists.")
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	role := model.RoleUser
	if superuser {
		role = model.RoleAdmin
	}
	newUser := &model.User{Username: username, Password: hashedPassword, Role: role}
	if err := users.Create(newUser); err != nil {
		log.Errorf("[UserService] 创建用户失败, username: %s, error: %v", username, err)
		return nil, err
	}
	return newUser, nil
}

func (s *userService) List(ctx context.Context) ([]model.User, error) {
	return s.store.WithContext(ctx).Users().FindAll()
}

// SetPassword 重置用户密码。已签发的令牌不受影响，直到过期或登出。
func (s *userService) SetPassword(ctx context.Context, username, password string) error {
	if password == "" {
		return apperr.InvalidOp("Username and password are required.")
	}
	users := s.store.WithContext(ctx).Users()
	u, err := users.FindByUsername(strings.TrimSpace(username))
	if err != nil {
		if repository.IsNotFound(err) {
			return apperr.New(apperr.NotFound, "User not found.")
		}
		return err
	}
	if u.Password, err = hash.HashPassword(password); err != nil {
		return err
	}
	return users.Update(u)
}

// Delete 删除用户及其授权与播放列表。
func (s *userService) Delete(ctx context.Context, username string) error {
	users := s.store.WithContext(ctx).Users()
	u, err := users.FindByUsername(strings.TrimSpace(username))
	if err != nil {
		if repository.IsNotFound(err) {
			return apperr.New(apperr.NotFound, "User not found.")
		}
		return err
	}
	if err := users.Delete(u.ID); err != nil {
		return err
	}
	log.Infof("[UserService] 已删除用户 %s (id %d)", u.Username, u.ID)
	return nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, username, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.store.WithContext(ctx).Users().FindByUsername(username)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", "", errInvalidCredentials
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", errInvalidCredentials
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Logout 将 token 加入黑名单，黑名单条目在 token 原本过期时失效。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return apperr.New(apperr.Unauthorized, "Invalid token.")
	}
	return s.blacklist.Add(ctx, tokenString, s.jwtManager.RemainingTTL(claims))
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	// 1. 验证 refresh token 是否有效
	claims, err := s.jwtManager.VerifyKind(refreshTokenString, token.KindRefresh)
	if err != nil {
		return "", "", apperr.New(apperr.Unauthorized, "Invalid refresh token.")
	}
	if revoked, err := s.blacklist.Contains(ctx, refreshTokenString); err != nil {
		return "", "", err
	} else if revoked {
		return "", "", apperr.New(apperr.Unauthorized, "Invalid refresh token.")
	}

	// 2. 检查用户是否存在
	user, err := s.store.WithContext(ctx).Users().FindByUsername(claims.Username)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", "", apperr.New(apperr.Unauthorized, "User not found.")
		}
		return "", "", err
	}

	// 3. 签发新的 token
	newAccessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, username string) (*model.User, error) {
	user, err := s.store.WithContext(ctx).Users().FindByUsername(username)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.NotFound, "User not found.")
		}
		return nil, err
	}
	return user, nil
}

// IsTokenRevoked 判断 token 是否已登出。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	return s.blacklist.Contains(ctx, tokenString)
}
