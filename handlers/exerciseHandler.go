package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"languagetutor/services"
	"languagetutor/services/exercise"

	"github.com/gorilla/mux"
)

type ExerciseHandler struct {
	service *services.TutorService
}

func NewExerciseHandler(service *services.TutorService) *ExerciseHandler {
	return &ExerciseHandler{service: service}
}

func (h *ExerciseHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tutor/exercise", h.Generate).Methods("POST")
}

type exerciseResponse struct {
	UserID    string              `json:"user_id"`
	Exercises []exercise.Exercise `json:"exercises"`
}

func (h *ExerciseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received exercise generation request")

	userID, set, err := h.service.GenerateExercises(r.Context(), sessionID(r))
	if err != nil {
		log.Printf("[ERROR] Exercise generation failed: %v", err)
		if errors.Is(err, services.ErrOnboardingIncomplete) {
			h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	setSessionCookie(w, userID)
	h.writeJSONResponse(w, http.StatusOK, exerciseResponse{UserID: userID, Exercises: set.Exercises})
}

func (h *ExerciseHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *ExerciseHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
