package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStateTable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		token string
		want  UnitState
	}{
		{"active", Up},
		{"inactive", Down},
		{"failed", Failed},
		{"activating", Starting},
		{"deactivating", Stopping},
		{"maintenance", Maintenance},
		{"reloading", Reloading},
		{"refreshing", Refreshing},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.token, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeState(tt.token)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeStateRejectsUnknown(t *testing.T) {
	t.Parallel()
	for _, token := range []string{"", "bogus", "ACTIVE", "Active", " active", "active\n"} {
		_, err := DecodeState(token)
		require.Error(t, err, "token %q", token)

		var de *DecodeError
		require.True(t, errors.As(err, &de), "token %q: %T", token, err)
		require.Equal(t, token, de.Token)
	}
}

func TestDecodeErrorNamesToken(t *testing.T) {
	_, err := DecodeState("bogus")
	require.EqualError(t, err, `unrecognized unit state "bogus"`)
}

func TestUnitStateStringAndRunning(t *testing.T) {
	require.Equal(t, "Maintenance", Maintenance.String())
	require.Equal(t, "UnitState(42)", UnitState(42).String())

	require.True(t, Up.Running())
	require.True(t, Starting.Running())
	require.False(t, Down.Running())
	require.False(t, Failed.Running())
	require.False(t, Stopping.Running())
}

func TestRegistrySortsAndDedups(t *testing.T) {
	r := NewRegistry([]UnitID{"web", "db", "", "web", "cache"})
	require.Equal(t, []UnitID{"cache", "db", "web"}, r.List())
	require.Equal(t, 3, r.Len())
	require.True(t, r.Contains("db"))
	require.False(t, r.Contains("mail"))

	l := r.List()
	l[0] = "mutated"
	require.Equal(t, UnitID("cache"), r.List()[0])
}

func TestFailureClass(t *testing.T) {
	require.Equal(t, ClassSetup, Failure{Err: stageErr(ClassSetup, "failed to connect", errBoom)}.Class())
	require.Equal(t, ClassDecode, Failure{Err: &DecodeError{Token: "x"}}.Class())
	require.Equal(t, ClassUnknown, Failure{Err: errBoom}.Class())
}
