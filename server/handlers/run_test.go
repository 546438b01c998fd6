package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/pipeline"
)

type mockStarter struct {
	id  string
	err error

	gotParams    execution.Params
	gotTriggered string
}

func (m *mockStarter) StartRun(params execution.Params, triggeredBy string) (string, error) {
	m.gotParams = params
	m.gotTriggered = triggeredBy
	if m.err != nil {
		return "", m.err
	}
	return m.id, nil
}

func (m *mockStarter) DefaultParams() execution.Params {
	return testParams()
}

func TestRunHandler_EmptyBodyUsesDefaults(t *testing.T) {
	starter := &mockStarter{id: "exec-1"}
	handler := NewRunHandler(starter)

	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"id": "exec-1"}`, w.Body.String())
	assert.Equal(t, testParams(), starter.gotParams)
	assert.Equal(t, "api", starter.gotTriggered)
}

func TestRunHandler_BodyOverridesDefaults(t *testing.T) {
	starter := &mockStarter{id: "exec-2"}
	handler := NewRunHandler(starter)

	body := strings.NewReader(`{"target_sheet_id": "target-other", "credentials_ref": "ops"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/run", body)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "target-other", starter.gotParams.TargetSheetID)
	assert.Equal(t, "ops", starter.gotParams.CredentialsRef)
	// Fields the body left out keep the configured defaults.
	assert.Equal(t, "calc-1", starter.gotParams.CalcSheetID)
	assert.Equal(t, "support-1", starter.gotParams.SupportSheetID)
}

func TestRunHandler_RunInProgress(t *testing.T) {
	starter := &mockStarter{
		err: fmt.Errorf("%w: execution exec-1", pipeline.ErrRunInProgress),
	}
	handler := NewRunHandler(starter)

	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already in progress")
}

func TestRunHandler_InvalidParameters(t *testing.T) {
	starter := &mockStarter{
		err: fmt.Errorf("%w: target sheet id is required", execution.ErrInvalidParameters),
	}
	handler := NewRunHandler(starter)

	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_InvalidJSON(t *testing.T) {
	starter := &mockStarter{id: "exec-3"}
	handler := NewRunHandler(starter)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}
