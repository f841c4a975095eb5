package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/application/usecase/allocation"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/infrastructure/persistence/memory"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

type apiFixture struct {
	router   *mux.Router
	workflow *allocation.Workflow
	clock    clockwork.FakeClock
	owner    *domain.Entity
	dev      *domain.Entity
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	entities := memory.NewEntityRepository()
	events := memory.NewEventRepository()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	workflow := allocation.NewWorkflow(entities, events, clock, logger.NewNoop())

	router := mux.NewRouter()
	NewEntityHandler(workflow).RegisterRoutes(router)
	NewAllocationHandler(workflow).RegisterRoutes(router)

	ctx := context.Background()
	owner, err := workflow.CreateEntity(ctx, inbound.CreateEntityRequest{
		Name: "Platform Owner", Type: domain.EntityTypeOwner, InitialHours: 1000,
	})
	require.NoError(t, err)
	dev, err := workflow.CreateEntity(ctx, inbound.CreateEntityRequest{
		Name: "Acme Dev", Type: domain.EntityTypeDeveloper, ParentID: owner.ID,
	})
	require.NoError(t, err)

	return &apiFixture{router: router, workflow: workflow, clock: clock, owner: owner, dev: dev}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

type envelopeBody struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var envelope envelopeBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func allocationBody(fromID, toID string, hours float64) map[string]interface{} {
	return map[string]interface{}{
		"from_entity_id": fromID,
		"to_entity_id":   toID,
		"hour_amount":    hours,
		"period": map[string]interface{}{
			"name":  "Jan 2024",
			"start": "2024-01-01T00:00:00Z",
			"end":   "2024-01-31T23:59:59Z",
		},
		"performed_by": "admin@spacedesk",
	}
}

func TestCreateAllocationEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, f.dev.ID, 500))
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	envelope := decodeEnvelope(t, recorder)
	assert.True(t, envelope.Status)

	var event domain.AllocationEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	assert.Equal(t, domain.ActionCreated, event.ActionType)
	assert.Equal(t, 500.0, event.AfterState.HourAmount)
	assert.NotEmpty(t, event.ID)
}

func TestCreateAllocationEndpointRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/allocations", bytes.NewReader([]byte("{nope")))
		recorder := httptest.NewRecorder()
		f.router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("non-positive hours", func(t *testing.T) {
		recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, f.dev.ID, 0))
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, "ghost", 100))
		assert.Equal(t, http.StatusNotFound, recorder.Code)
		envelope := decodeEnvelope(t, recorder)
		assert.Equal(t, "ENTITY_1001", envelope.Error.Code)
	})

	t.Run("insufficient hours carries figures", func(t *testing.T) {
		recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, f.dev.ID, 5000))
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		envelope := decodeEnvelope(t, recorder)
		assert.Equal(t, "ALLOC_3001", envelope.Error.Code)
		assert.Contains(t, envelope.Error.Details, "Available: 1000.00")
	})
}

func TestModifyAndRevokeEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, f.dev.ID, 500))
	require.Equal(t, http.StatusCreated, recorder.Code)
	var created domain.AllocationEvent
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, recorder).Data, &created))
	f.clock.Advance(time.Minute)

	recorder = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/allocations/%s/modify", created.ID), map[string]interface{}{
		"new_hour_amount": 650,
		"performed_by":    "admin@spacedesk",
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var modified domain.AllocationEvent
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, recorder).Data, &modified))
	assert.Equal(t, 650.0, modified.AfterState.HourAmount)
	require.NotNil(t, modified.RelatedEventID)
	assert.Equal(t, created.ID, *modified.RelatedEventID)
	f.clock.Advance(time.Minute)

	recorder = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/allocations/%s/revoke", modified.ID), map[string]interface{}{
		"revoke_amount": 200,
		"performed_by":  "admin@spacedesk",
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var revoked domain.AllocationEvent
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, recorder).Data, &revoked))
	assert.Equal(t, 450.0, revoked.AfterState.HourAmount)

	// Anchoring on the superseded event is a conflict.
	recorder = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/allocations/%s/modify", created.ID), map[string]interface{}{
		"new_hour_amount": 700,
		"performed_by":    "admin@spacedesk",
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "ALLOC_3003", decodeEnvelope(t, recorder).Error.Code)
}

func TestTimelineEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/allocations", allocationBody(f.owner.ID, f.dev.ID, 500))
	require.Equal(t, http.StatusCreated, recorder.Code)
	var created domain.AllocationEvent
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, recorder).Data, &created))
	f.clock.Advance(time.Minute)

	recorder = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/allocations/%s/modify", created.ID), map[string]interface{}{
		"new_hour_amount": 650,
		"performed_by":    "admin@spacedesk",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/allocations/%s/timeline", created.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var chain []domain.AllocationEvent
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, recorder).Data, &chain))
	require.Len(t, chain, 2)
	assert.Equal(t, domain.ActionCreated, chain[0].ActionType)
	assert.Equal(t, domain.ActionModified, chain[1].ActionType)

	recorder = f.do(t, http.MethodGet, "/api/v1/allocations/ghost/timeline", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
