package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/infrastructure/http/response"
	"github.com/spacedesk/spacedesk/infrastructure/http/validator"
)

// AllocationHandler exposes the allocation workflow and the event timeline
type AllocationHandler struct {
	allocationUseCase inbound.AllocationUseCase
}

func NewAllocationHandler(allocationUseCase inbound.AllocationUseCase) *AllocationHandler {
	return &AllocationHandler{allocationUseCase: allocationUseCase}
}

// RegisterRoutes mounts the allocation endpoints on the router
func (h *AllocationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/allocations", h.CreateAllocation).Methods("POST")
	router.HandleFunc("/api/v1/allocations/{eventId}/modify", h.ModifyAllocation).Methods("POST")
	router.HandleFunc("/api/v1/allocations/{eventId}/revoke", h.RevokeAllocation).Methods("POST")
	router.HandleFunc("/api/v1/allocations/{eventId}/timeline", h.GetTimeline).Methods("GET")
}

// CreateAllocation grants hours from one entity to another
func (h *AllocationHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req inbound.CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if !validator.ValidateRequired(req.FromEntityID) || !validator.ValidateRequired(req.ToEntityID) {
		response.UnprocessableEntity(w, "Both entity ids are required")
		return
	}
	if !validator.ValidatePositiveHours(req.HourAmount) {
		response.UnprocessableEntity(w, "Hour amount must be positive")
		return
	}
	if !validator.ValidatePeriodName(req.Period.Name) {
		response.UnprocessableEntity(w, "Invalid allocation period name")
		return
	}
	if !validator.ValidateRequired(req.PerformedBy) {
		response.UnprocessableEntity(w, "performed_by is required")
		return
	}

	event, err := h.allocationUseCase.CreateAllocation(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusCreated, "Allocation created", event)
}

// ModifyAllocation supersedes the latest event of a chain with a new amount
func (h *AllocationHandler) ModifyAllocation(w http.ResponseWriter, r *http.Request) {
	var req inbound.ModifyAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	req.EventID = mux.Vars(r)["eventId"]

	if !validator.ValidatePositiveHours(req.NewHourAmount) {
		response.UnprocessableEntity(w, "New hour amount must be positive")
		return
	}
	if !validator.ValidateRequired(req.PerformedBy) {
		response.UnprocessableEntity(w, "performed_by is required")
		return
	}

	event, err := h.allocationUseCase.ModifyAllocation(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Allocation modified", event)
}

// RevokeAllocation returns part or all of a line to the allocator
func (h *AllocationHandler) RevokeAllocation(w http.ResponseWriter, r *http.Request) {
	var req inbound.RevokeAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	req.EventID = mux.Vars(r)["eventId"]

	if !validator.ValidatePositiveHours(req.RevokeAmount) {
		response.UnprocessableEntity(w, "Revoke amount must be positive")
		return
	}
	if !validator.ValidateRequired(req.PerformedBy) {
		response.UnprocessableEntity(w, "performed_by is required")
		return
	}

	event, err := h.allocationUseCase.RevokeAllocation(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Allocation revoked", event)
}

// GetTimeline returns the full causal chain containing the event
func (h *AllocationHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]
	events, err := h.allocationUseCase.RelatedEvents(r.Context(), eventID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Timeline reconstructed", events)
}
