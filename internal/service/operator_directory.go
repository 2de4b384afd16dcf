package service

import (
	"context"
	"fmt"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
)

// OperatorCredential is one configured operator identity.
type OperatorCredential struct {
	ID        uuid.UUID
	Role      domain.Role
	AccessKey string
	SecretKey string
}

// staticOperatorDirectory serves operators loaded from configuration. Secrets
// are held encrypted, the same way merchant webhook secrets are.
type staticOperatorDirectory struct {
	byAccessKey map[string]domain.Operator
}

// NewStaticOperatorDirectory validates and encrypts the configured operators.
func NewStaticOperatorDirectory(creds []OperatorCredential, encSvc ports.EncryptionService) (ports.OperatorDirectory, error) {
	dir := &staticOperatorDirectory{byAccessKey: make(map[string]domain.Operator, len(creds))}
	for _, cred := range creds {
		if cred.Role != domain.RoleAdmin && cred.Role != domain.RoleCrank {
			return nil, fmt.Errorf("operator %s: role must be admin or crank, got %q", cred.ID, cred.Role)
		}
		if cred.ID == uuid.Nil || cred.AccessKey == "" || cred.SecretKey == "" {
			return nil, fmt.Errorf("operator %q: id, access key and secret key are required", cred.AccessKey)
		}
		if _, dup := dir.byAccessKey[cred.AccessKey]; dup {
			return nil, fmt.Errorf("operator access key %q configured twice", cred.AccessKey)
		}

		secretEnc, err := encSvc.Encrypt(cred.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt operator secret: %w", err)
		}
		dir.byAccessKey[cred.AccessKey] = domain.Operator{
			ID:           cred.ID,
			Role:         cred.Role,
			AccessKey:    cred.AccessKey,
			SecretKeyEnc: secretEnc,
		}
	}
	return dir, nil
}

func (d *staticOperatorDirectory) GetByAccessKey(_ context.Context, accessKey string) (*domain.Operator, error) {
	op, ok := d.byAccessKey[accessKey]
	if !ok {
		return nil, nil
	}
	return &op, nil
}
