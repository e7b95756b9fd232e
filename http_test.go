package main

import (
	"fmt"
	"net/http"
	"testing"

	"tricoder.app/routing"
)

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrSessionNotFound, http.StatusNotFound},
		{ErrTurnNotFound, http.StatusNotFound},
		{ErrEmptyInput, http.StatusBadRequest},
		{ErrEntryInFlight, http.StatusConflict},
		{ErrJudgeNotReady, http.StatusPreconditionFailed},
		{routing.ErrMissingAPIKey, http.StatusUnauthorized},
		{fmt.Errorf("session lookup: %w", ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("all deployments failed: %w", routing.ErrMissingAPIKey), http.StatusUnauthorized},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
