package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := fmt.Errorf("add to index: %w", E(ErrStorage, "insert word", cause))

	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "add to index: insert word: storage failure: disk full", err.Error())
}

func TestLockedCountsAsConnectivity(t *testing.T) {
	t.Parallel()

	locked := E(ErrStorageLocked, "restore", nil)
	assert.True(t, IsConnectivity(locked))
	assert.True(t, IsLocked(locked))

	down := E(ErrConnectivity, "dial", nil)
	assert.True(t, IsConnectivity(down))
	assert.False(t, IsLocked(down))
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   error
		status int
	}{
		{name: "validation", kind: ErrValidation, status: http.StatusBadRequest},
		{name: "locked", kind: ErrStorageLocked, status: http.StatusLocked},
		{name: "not found", kind: ErrNotFound, status: http.StatusNotFound},
		{name: "connectivity", kind: ErrConnectivity, status: http.StatusServiceUnavailable},
		{name: "storage", kind: ErrStorage, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status := HTTPStatusCode(E(tt.kind, "op", nil))
			require.Equal(t, tt.status, status)
			require.ErrorIs(t, FromStatus("remote", status, ""), tt.kind)
		})
	}
}

func TestNoReplicaIsUnavailable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusCode(ErrNoReplica))
	assert.Equal(t, http.StatusOK, HTTPStatusCode(nil))
}
