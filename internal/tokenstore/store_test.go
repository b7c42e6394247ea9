package tokenstore

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/upravdom-client/internal/models"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore/mocks"
	"github.com/stretchr/testify/require"
)

func TestSavePair_LoadPair_Clear_Memory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	_, ok, err := LoadPair(ctx, s)
	require.NoError(t, err)
	require.False(t, ok)

	pair := models.TokenPair{AccessToken: "acc-1", RefreshToken: "ref-1"}
	require.NoError(t, SavePair(ctx, s, pair))

	got, ok, err := LoadPair(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pair, got)
	require.Equal(t, map[string]string{KeyAccessToken: "acc-1", KeyRefreshToken: "ref-1"}, s.Snapshot())

	require.NoError(t, Clear(ctx, s))
	require.Empty(t, s.Snapshot())

	// Повторная очистка пустого хранилища — не ошибка.
	require.NoError(t, Clear(ctx, s))
}

func TestSavePair_RejectsIncompletePair(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	err := SavePair(context.Background(), s, models.TokenPair{AccessToken: "only-access"})
	require.ErrorIs(t, err, models.ErrEmptyToken)
	require.Empty(t, s.Snapshot())
}

func TestSavePair_WritesAccessThenRefresh(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		st.EXPECT().Set(gomock.Any(), KeyAccessToken, "a").Return(nil),
		st.EXPECT().Set(gomock.Any(), KeyRefreshToken, "r").Return(nil),
	)

	require.NoError(t, SavePair(context.Background(), st, models.TokenPair{AccessToken: "a", RefreshToken: "r"}))
}

func TestSavePair_StopsOnAccessFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	boom := errors.New("keystore locked")
	st.EXPECT().Set(gomock.Any(), KeyAccessToken, "a").Return(boom)

	err := SavePair(context.Background(), st, models.TokenPair{AccessToken: "a", RefreshToken: "r"})
	require.ErrorIs(t, err, boom)
}

func TestClear_DeletesRefreshEvenIfAccessFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	boom := errors.New("io error")
	st.EXPECT().Delete(gomock.Any(), KeyAccessToken).Return(boom)
	st.EXPECT().Delete(gomock.Any(), KeyRefreshToken).Return(nil)

	err := Clear(context.Background(), st)
	require.ErrorIs(t, err, boom)
}

func TestLoadPair_HalfPairIsNotOK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, KeyAccessToken, "acc"))

	p, ok, err := LoadPair(ctx, s)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "acc", p.AccessToken)
}
