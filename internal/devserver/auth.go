package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pageza/pantrycam/internal/types"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const userIDKey = "user_id"

// Auth issues and checks HS256 tokens for accounts stored in db.
type Auth struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
}

func NewAuth(db *gorm.DB, secret string, ttl time.Duration) *Auth {
	return &Auth{db: db, secret: []byte(secret), ttl: ttl}
}

func (a *Auth) Register(req types.RegisterRequest) (*types.AuthResponse, error) {
	var existing User
	if err := a.db.Where("email = ?", strings.ToLower(req.Email)).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(req.Email),
		Name:         req.Name,
		PasswordHash: string(hashed),
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return a.respond(user)
}

func (a *Auth) Login(req types.LoginRequest) (*types.AuthResponse, error) {
	var user User
	if err := a.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.respond(user)
}

func (a *Auth) respond(user User) (*types.AuthResponse, error) {
	token, err := a.generateToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &types.AuthResponse{
		Token: token,
		User:  types.User{ID: user.ID, Email: user.Email, Name: user.Name},
	}, nil
}

func (a *Auth) generateToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(a.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken returns the user id carried by a valid token.
func (a *Auth) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}
	return userID, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id in the context.
func RequireAuth(a *Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		userID, err := a.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "Invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
