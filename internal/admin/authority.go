// Package admin holds the administrative capability of a deployment.
//
// An Authority is created once from the deployer address and handed to every
// component whose operations it gates. It cannot be transferred or revoked.
package admin

import (
	"crypto/subtle"

	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
)

// Authority is the explicit admin capability. The zero value permits nobody.
type Authority struct {
	owner id.Address
}

// NewAuthority fixes owner as the sole administrator.
//
// Errors: returns CodeInvalidConfig when owner is the zero address.
func NewAuthority(owner id.Address) (*Authority, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "admin owner address is required")
	}
	return &Authority{owner: owner}, nil
}

// Owner returns the administrator address.
func (a *Authority) Owner() id.Address {
	if a == nil {
		return id.ZeroAddress
	}
	return a.owner
}

// Permits reports whether caller holds the capability.
func (a *Authority) Permits(caller id.Address) bool {
	if a == nil || a.owner.IsZero() {
		return false
	}
	return subtle.ConstantTimeCompare(caller[:], a.owner[:]) == 1
}

// Check returns CodePermissionDenied unless caller holds the capability.
func (a *Authority) Check(caller id.Address) error {
	if !a.Permits(caller) {
		return dErrors.New(dErrors.CodePermissionDenied, "caller is not the administrator")
	}
	return nil
}
