package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"petshop/core"
	"petshop/service"
	"petshop/storage"
)

const healthCheckTimeout = 5 * time.Second

// IndexResponse describes the service at GET /
type IndexResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Paths   string `json:"paths"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

func (a *API) index(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, IndexResponse{
		Name:    "Pet Demo REST API Service",
		Version: "1.0",
		Paths:   externalURL(r, "/pets"),
	}, http.StatusOK)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := a.health.Ping(ctx); err != nil {
		a.logger.Warnw("Health check failed", "error", err)
		a.respondJSON(w, HealthResponse{Status: "DOWN"}, http.StatusServiceUnavailable)
		return
	}
	a.respondJSON(w, HealthResponse{Status: "OK"}, http.StatusOK)
}

// listPets returns pets filtered by at most one of category, name, available or gender
func (a *API) listPets(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := service.ListQuery{
		Category: params.Get("category"),
		Name:     params.Get("name"),
	}
	if params.Has("available") {
		available := parseBool(params.Get("available"))
		query.Available = &available
	}
	if value := params.Get("gender"); value != "" {
		gender, err := core.ParseGender(strings.ToUpper(value))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid attribute: gender %s", value), err, a.logger)
			return
		}
		query.Gender = &gender
	}

	pets, err := a.pets.List(r.Context(), query)
	if err != nil {
		a.handleServiceError(w, "", err)
		return
	}
	a.respondJSON(w, pets, http.StatusOK)
}

func (a *API) getPet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pet, err := a.pets.Get(r.Context(), id)
	if err != nil {
		a.handleServiceError(w, id, err)
		return
	}
	a.respondJSON(w, pet, http.StatusOK)
}

func (a *API) createPet(w http.ResponseWriter, r *http.Request) {
	if !a.requireJSON(w, r) {
		return
	}
	data, ok := a.decodeJSONBody(w, r)
	if !ok {
		return
	}

	pet := &core.Pet{}
	if err := pet.Deserialize(data); err != nil {
		a.handleServiceError(w, "", err)
		return
	}
	if err := a.pets.Create(r.Context(), pet); err != nil {
		a.handleServiceError(w, pet.ID, err)
		return
	}

	w.Header().Set("Location", externalURL(r, "/pets/"+pet.ID))
	a.respondJSON(w, pet, http.StatusCreated)
}

func (a *API) updatePet(w http.ResponseWriter, r *http.Request) {
	if !a.requireJSON(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	data, ok := a.decodeJSONBody(w, r)
	if !ok {
		return
	}

	pet, err := a.pets.Update(r.Context(), id, data)
	if err != nil {
		a.handleServiceError(w, id, err)
		return
	}
	a.respondJSON(w, pet, http.StatusOK)
}

// deletePet always answers 204 unless the store itself fails
func (a *API) deletePet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.pets.Delete(r.Context(), id); err != nil {
		a.handleServiceError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) purchasePet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pet, err := a.pets.Purchase(r.Context(), id)
	if err != nil {
		a.handleServiceError(w, id, err)
		return
	}
	a.respondJSON(w, pet, http.StatusOK)
}

func (a *API) removeAllPets(w http.ResponseWriter, r *http.Request) {
	if err := a.pets.RemoveAll(r.Context()); err != nil {
		a.handleServiceError(w, "", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound,
		fmt.Sprintf("The requested URL %s was not found on the server.", r.URL.Path), nil, a.logger)
}

func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed,
		fmt.Sprintf("The method %s is not allowed for the requested URL.", r.Method), nil, a.logger)
}

// handleServiceError maps service and storage errors onto HTTP responses
func (a *API) handleServiceError(w http.ResponseWriter, id string, err error) {
	var validationErr *core.DataValidationError
	var connErr *core.DatabaseConnectionError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Message, err, a.logger)
	case errors.Is(err, storage.ErrPetNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Pet with id '%s' was not found.", id), err, a.logger)
	case errors.Is(err, service.ErrPetNotAvailable):
		writeError(w, http.StatusConflict, fmt.Sprintf("Pet with id '%s' is not available.", id), err, a.logger)
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, fmt.Sprintf("Pet with id '%s' was modified concurrently.", id), err, a.logger)
	case errors.As(err, &connErr), errors.Is(err, storage.ErrDatabaseClosed):
		writeError(w, http.StatusServiceUnavailable, "Document store is unavailable", err, a.logger)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Document store timed out", err, a.logger)
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error", err, a.logger)
	}
}

// externalURL builds an absolute URL for path on the host the client addressed
func externalURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded == "http" || forwarded == "https" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + path
}
