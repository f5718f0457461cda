package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"languagetutor/models"
	"languagetutor/services"

	"github.com/gorilla/mux"
)

const SessionCookieName = "tutorSession"

type TutorHandler struct {
	service *services.TutorService
}

func NewTutorHandler(service *services.TutorService) *TutorHandler {
	return &TutorHandler{service: service}
}

func (h *TutorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tutor/chat", h.Chat).Methods("POST")
	router.HandleFunc("/tutor/history", h.History).Methods("GET")
}

func (h *TutorHandler) Chat(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received tutor chat request")

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode chat request JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	userID, turn, err := h.service.HandleTurn(r.Context(), sessionID(r), req.Input)
	if err != nil {
		log.Printf("[ERROR] Tutor turn failed: %v", err)
		h.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	// A nil turn means onboarding just completed; the tutor opens the
	// conversation right away.
	if turn == nil {
		userID, turn, err = h.service.HandleTurn(r.Context(), userID, "")
		if err != nil {
			log.Printf("[ERROR] Failed to open tutoring conversation: %v", err)
			h.writeErrorResponse(w, statusForError(err), err.Error())
			return
		}
	}

	setSessionCookie(w, userID)
	h.writeJSONResponse(w, http.StatusOK, models.ChatResponse{UserID: userID, Turn: turn})
}

func (h *TutorHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := sessionID(r)
	if userID == "" {
		h.writeJSONResponse(w, http.StatusOK, models.HistoryResponse{Turns: []models.Turn{}})
		return
	}

	turns, err := h.service.SearchHistory(userID, r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("[ERROR] Failed to load history: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.HistoryResponse{UserID: userID, Turns: turns})
}

func (h *TutorHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *TutorHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setSessionCookie(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    userID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func statusForError(err error) int {
	var transportErr *models.TransportError
	var malformedErr *models.MalformedReplyError
	var exhaustedErr *models.ValidationExhaustedError

	switch {
	case errors.As(err, &transportErr), errors.As(err, &malformedErr):
		return http.StatusBadGateway
	case errors.As(err, &exhaustedErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
