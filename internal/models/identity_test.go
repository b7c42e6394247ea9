package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeIdentity_OK(t *testing.T) {
	t.Parallel()

	id, err := DecodeIdentity([]byte(`{"id":7,"phone":"+77011234567","role":"USER","apartmentId":12,"fullName":"Иванов И."}`))
	require.NoError(t, err)
	require.Equal(t, int64(7), id.ID)
	require.Equal(t, RoleUser, id.Role)
	require.NotNil(t, id.ApartmentID)
	require.Equal(t, int64(12), *id.ApartmentID)
	require.Equal(t, "Иванов И.", id.DisplayName())
	require.False(t, id.IsAdmin())
	require.Equal(t, "Сосед", id.DisplayRole())
}

func TestDecodeIdentity_OptionalFieldsAbsent(t *testing.T) {
	t.Parallel()

	id, err := DecodeIdentity([]byte(`{"id":1,"phone":"+77010000000","role":"ADMIN","apartmentId":null}`))
	require.NoError(t, err)
	require.Nil(t, id.ApartmentID)
	require.Nil(t, id.FullName)
	require.True(t, id.IsAdmin())
	require.Equal(t, "Управдом", id.DisplayRole())
	require.Equal(t, "+77010000000", id.DisplayName())
}

func TestDecodeIdentity_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"not_json", `<html>`},
		{"missing_id", `{"phone":"1","role":"USER"}`},
		{"missing_phone", `{"id":1,"role":"USER"}`},
		{"unknown_role", `{"id":1,"phone":"1","role":"ROOT"}`},
		{"missing_role", `{"id":1,"phone":"1"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeIdentity([]byte(tt.in))
			require.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
}

func TestIdentity_NilSafe(t *testing.T) {
	t.Parallel()

	var id *Identity
	require.False(t, id.IsAdmin())
	require.Equal(t, "", id.DisplayName())
	require.ErrorIs(t, id.Validate(), ErrInvalidIdentity)
}
