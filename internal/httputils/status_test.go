package httputils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

func TestStatusForMatchesErrorHandlingTable(t *testing.T) {
	cases := map[core.Kind]int{
		core.KindNotFound:     http.StatusNotFound,
		core.KindConflict:     http.StatusConflict,
		core.KindInvalid:      http.StatusBadRequest,
		core.KindUnauthorized: http.StatusUnauthorized,
		core.KindUpstream:     http.StatusServiceUnavailable,
		core.KindTransient:    http.StatusServiceUnavailable,
		core.KindFatal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, StatusFor(kind), "kind=%s", kind)
	}
}

func TestWriteErrorUsesCoreErrorCodeAndDetail(t *testing.T) {
	err := core.NewError(core.KindConflict, "project_name_taken", "a project with this name already exists")
	rec := httptest.NewRecorder()
	WriteError(rec, err)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"code":"project_name_taken","detail":"a project with this name already exists"}`, rec.Body.String())
}

func TestWriteErrorFallsBackToFatalForUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
