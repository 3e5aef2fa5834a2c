package jwttoken

import (
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	authmw "ccns/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) (*authmw.JWTClaims, error) {
	caller, err := id.ParseAddress(claims.Caller)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token caller")
	}
	return &authmw.JWTClaims{
		Caller: caller,
		JTI:    claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
