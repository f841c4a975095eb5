package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/infrastructure/http/response"
	"github.com/spacedesk/spacedesk/infrastructure/http/validator"
)

// EntityHandler exposes the registry surface to collaborator screens
type EntityHandler struct {
	entityUseCase inbound.EntityUseCase
}

func NewEntityHandler(entityUseCase inbound.EntityUseCase) *EntityHandler {
	return &EntityHandler{entityUseCase: entityUseCase}
}

// RegisterRoutes mounts the entity endpoints on the router
func (h *EntityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/entities", h.CreateEntity).Methods("POST")
	router.HandleFunc("/api/v1/entities", h.ListEntities).Methods("GET")
	router.HandleFunc("/api/v1/entities/{id}", h.GetEntity).Methods("GET")
	router.HandleFunc("/api/v1/entities/{id}/children", h.ListChildren).Methods("GET")
	router.HandleFunc("/api/v1/entities/{id}/recipients", h.ListPermittedRecipients).Methods("GET")
	router.HandleFunc("/api/v1/entities/{id}/balance", h.GetBalance).Methods("GET")
}

// CreateEntity registers a new hierarchy participant
func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req inbound.CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if !validator.ValidateRequired(req.Name) {
		response.UnprocessableEntity(w, "Name is required")
		return
	}
	if !validator.ValidateRequired(string(req.Type)) {
		response.UnprocessableEntity(w, "Type is required")
		return
	}

	entity, err := h.entityUseCase.CreateEntity(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusCreated, "Entity created", entity)
}

// GetEntity returns one entity as stored
func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entity, err := h.entityUseCase.GetEntity(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Entity found", entity)
}

// ListEntities returns every hierarchy participant
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.entityUseCase.ListEntities(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Entities listed", entities)
}

// ListChildren returns the direct children of an entity
func (h *EntityHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	children, err := h.entityUseCase.ListChildren(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Children listed", children)
}

// ListPermittedRecipients returns the hierarchy levels the entity may
// allocate to, for collaborator screens building recipient pickers
func (h *EntityHandler) ListPermittedRecipients(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	types, err := h.entityUseCase.PermittedRecipients(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Permitted recipients listed", types)
}

// GetBalance replays the entity's ledger and returns the derived figures
func (h *EntityHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	summary, err := h.entityUseCase.EntitySummary(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Balance computed", summary)
}
