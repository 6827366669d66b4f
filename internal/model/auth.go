package model

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

type RegisterRequest struct {
	Name                 string  `json:"name" form:"name" binding:"required,max=255"`
	Email                string  `json:"email" form:"email" binding:"required,email,max=255"`
	Password             string  `json:"password" form:"password" binding:"required,min=8"`
	PasswordConfirmation string  `json:"password_confirmation" form:"password_confirmation" binding:"required,eqfield=Password"`
	ClinicName           string  `json:"clinic_name" form:"clinic_name" binding:"omitempty,max=255"`
	Phone                *string `json:"phone" form:"phone" binding:"omitempty,max=32"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Registration is the result of the registration flow
type Registration struct {
	User     *User          `json:"user"`
	Clinic   *Clinic        `json:"clinic"`
	Role     *Role          `json:"role"`
	Tokens   *TokenResponse `json:"tokens,omitempty"`
	Redirect string         `json:"redirect"`
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	TokenType string    `json:"token_type"`
}
