package dtos

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/constants"
)

type LoginDTO struct {
	RoutingKey string `json:"routingKey"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
}

func (d *LoginDTO) Ok() (map[string]string, bool) {
	return validate(d)
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (d *RefreshTokenDTO) Ok() (map[string]string, bool) {
	return validate(d)
}

// validate maps field names to the failed rule, e.g. {"email": "email"}.
func validate(v interface{}) (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := constants.Validate.Struct(v)
	if errs == nil {
		return errorMessages, true
	}
	validationErrors, ok := errs.(validator.ValidationErrors)
	if !ok {
		errorMessages["body"] = errs.Error()
		return errorMessages, false
	}
	for _, err := range validationErrors {
		errorMessages[jsonName(err.Field())] = err.Tag()
	}
	return errorMessages, len(errorMessages) == 0
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return string(field[0]|0x20) + field[1:]
}

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

type TokenPairResponse struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type LoginResponse struct {
	TokenPairResponse
	User UserResponse `json:"user"`
}

type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

type MeResponse struct {
	UserResponse
	TenantID string `json:"tenantId"`
	PlanID   string `json:"planId,omitempty"`
}

func TokenPairToResponse(p services.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		AccessTokenExpiresAt:  p.AccessTokenExpiresAt.UTC(),
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt.UTC(),
	}
}

func LoginResultToResponse(r *services.LoginResult) LoginResponse {
	return LoginResponse{
		TokenPairResponse: TokenPairToResponse(r.TokenPair),
		User: UserResponse{
			ID:          r.User.ID,
			Email:       r.User.Email,
			FirstName:   r.User.FirstName,
			LastName:    r.User.LastName,
			Roles:       nonNil(r.User.Roles),
			Permissions: nonNil(r.User.Permissions),
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func UserToResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID(),
		Email:       u.Email(),
		FirstName:   u.FirstName(),
		LastName:    u.LastName(),
		Roles:       nonNil(u.RoleNames()),
		Permissions: nonNil(u.Permissions()),
	}
}
