package service

import (
	"context"
	"testing"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticOperatorDirectory_Lookup(t *testing.T) {
	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	adminID := uuid.New()
	dir, err := NewStaticOperatorDirectory([]OperatorCredential{
		{ID: adminID, Role: domain.RoleAdmin, AccessKey: "ak_admin", SecretKey: "sk_admin"},
		{ID: uuid.New(), Role: domain.RoleCrank, AccessKey: "ak_crank", SecretKey: "sk_crank"},
	}, encSvc)
	require.NoError(t, err)

	op, err := dir.GetByAccessKey(context.Background(), "ak_admin")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, domain.Caller{ID: adminID, Role: domain.RoleAdmin}, op.Caller())
	assert.NotEqual(t, "sk_admin", op.SecretKeyEnc)

	secret, err := encSvc.Decrypt(op.SecretKeyEnc)
	require.NoError(t, err)
	assert.Equal(t, "sk_admin", secret)

	op, err = dir.GetByAccessKey(context.Background(), "ak_unknown")
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestStaticOperatorDirectory_RejectsBadConfig(t *testing.T) {
	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds []OperatorCredential
	}{
		{"buyer role", []OperatorCredential{{ID: uuid.New(), Role: domain.RoleBuyer, AccessKey: "a", SecretKey: "s"}}},
		{"missing secret", []OperatorCredential{{ID: uuid.New(), Role: domain.RoleAdmin, AccessKey: "a"}}},
		{"nil id", []OperatorCredential{{Role: domain.RoleCrank, AccessKey: "a", SecretKey: "s"}}},
		{"duplicate key", []OperatorCredential{
			{ID: uuid.New(), Role: domain.RoleAdmin, AccessKey: "a", SecretKey: "s"},
			{ID: uuid.New(), Role: domain.RoleCrank, AccessKey: "a", SecretKey: "t"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticOperatorDirectory(tt.creds, encSvc)
			assert.Error(t, err)
		})
	}
}
