package domain

import "github.com/google/uuid"

// Role identifies what kind of party is calling an operation.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
	RoleCrank    Role = "crank"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleMerchant, RoleAdmin, RoleCrank:
		return true
	}
	return false
}

// Caller is the verified identity behind a request.
type Caller struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Is reports whether the caller holds role r with identity id.
func (c Caller) Is(r Role, id uuid.UUID) bool {
	return c.Role == r && c.ID == id
}

// Operator is a server-side identity (admin or crank) that authenticates with
// HMAC-signed requests.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Role         Role      `json:"role"`
	AccessKey    string    `json:"access_key"`
	SecretKeyEnc string    `json:"-"` // Encrypted, never expose
}

// Caller returns the operator as a request caller.
func (o *Operator) Caller() Caller {
	return Caller{ID: o.ID, Role: o.Role}
}
