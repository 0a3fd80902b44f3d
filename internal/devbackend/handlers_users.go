package devbackend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

const minPasswordLength = 8

func (s *Server) handleUserSettings(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())
	respondWithJSON(w, http.StatusOK, domain.UserSettings{
		ID:       int(account.ID),
		Username: account.Username,
		Email:    account.Email,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req domain.ChangePasswordRequest
	if !decodeJSON(r, &req) || req.OldPassword == "" || req.NewPassword == "" {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Old and new password are required"})
		return
	}
	if !account.CheckPassword(req.OldPassword) {
		respondWithJSON(w, http.StatusForbidden, map[string]string{"error": "Old password is incorrect"})
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "New password must be at least 8 characters long"})
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err == nil {
		err = s.accounts.UpdatePassword(r.Context(), account.ID, hash)
	}
	if err != nil {
		s.logger.Error("failed to change password", "account_id", account.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.events.emit(r.Context(), domain.RoutingPasswordChanged, account.ID, account.Role, "")
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req domain.DeleteAccountRequest
	if !decodeJSON(r, &req) || !account.CheckPassword(req.Password) {
		writeDetail(w, http.StatusForbidden, "Incorrect password.")
		return
	}
	if err := s.accounts.Delete(r.Context(), account.ID); err != nil {
		s.logger.Error("failed to delete account", "account_id", account.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.progress.Forget(account.ID)

	s.events.emit(r.Context(), domain.RoutingAccountDeleted, account.ID, account.Role, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, domain.CategoryList{Categories: s.catalogue.Categories})
}

func (s *Server) handleSubcategories(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.Atoi(chi.URLParam(r, "category"))
	subs, ok := s.catalogue.Subcategories[categoryID]
	if err != nil || !ok {
		writeDetail(w, http.StatusNotFound, "Category not found.")
		return
	}
	respondWithJSON(w, http.StatusOK, domain.SubcategoryList{Subcategories: subs})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	categoryID, err1 := strconv.Atoi(chi.URLParam(r, "category"))
	subcategoryID, err2 := strconv.Atoi(chi.URLParam(r, "subcategory"))
	modules, ok := s.catalogue.Modules[[2]int{categoryID, subcategoryID}]
	if err1 != nil || err2 != nil || !ok {
		writeDetail(w, http.StatusNotFound, "Subcategory not found.")
		return
	}
	respondWithJSON(w, http.StatusOK, domain.ModuleList{Videos: modules})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	dash := domain.Dashboard{
		GeneralVideos: make([]domain.Module, 0, len(s.catalogue.General)),
		Tasks:         make([]domain.Task, 0, len(s.catalogue.Tasks)),
		WeekData:      s.progress.WeekData(account.ID),
	}
	for _, m := range s.catalogue.General {
		m.Completed = s.progress.CompletedToday(account.ID, m.ID, false)
		dash.GeneralVideos = append(dash.GeneralVideos, m)
	}
	for _, t := range s.catalogue.Tasks {
		t.Completed = s.progress.CompletedToday(account.ID, t.ID, true)
		dash.Tasks = append(dash.Tasks, t)
	}
	if n := len(s.catalogue.Quotes); n > 0 {
		dash.Quote = &domain.Quote{Text: s.catalogue.Quotes[s.progress.now().YearDay()%n]}
	}
	respondWithJSON(w, http.StatusOK, dash)
}

func (s *Server) handleVideoCompletion(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || !s.catalogue.hasGeneralVideo(id) {
		writeDetail(w, http.StatusNotFound, "Video not found.")
		return
	}
	var req domain.CompletionUpdate
	if !decodeJSON(r, &req) || !req.IsCompleted {
		writeDetail(w, http.StatusBadRequest, "isCompleted must be true.")
		return
	}
	s.progress.Complete(account.ID, id, false)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Video marked as completed"})
}

func (s *Server) handleTaskCompletion(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || !s.catalogue.hasTask(id) {
		writeDetail(w, http.StatusNotFound, "Task not found.")
		return
	}
	s.progress.Complete(account.ID, id, true)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Task marked as completed"})
}

func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	nurse, _ := AccountFromContext(r.Context())

	var req domain.PatientRegistration
	if !decodeJSON(r, &req) {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case !strings.Contains(req.Email, "@") || req.Username == "":
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"message": "Email and username are required"})
		return
	case len(req.Password) < minPasswordLength || req.Password != req.Password2:
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"message": "Passwords must match and be at least 8 characters long"})
		return
	}

	allowed, _, err := s.limiter.Allow(r.Context(), "patient_register", strconv.FormatInt(nurse.ID, 10))
	if err == nil && !allowed {
		writeDetail(w, http.StatusTooManyRequests, "Too many accounts created. Try again later.")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	_, err = s.accounts.Create(r.Context(), &Account{
		Role:         domain.RolePatient,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if errors.Is(err, ErrAccountExists) {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to register patient", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Patient account created"})
}

func (s *Server) handlePatientsList(w http.ResponseWriter, r *http.Request) {
	searchBy := r.URL.Query().Get("searchBy")
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if searchBy != "id" {
		searchBy = "text"
	}

	accounts, err := s.accounts.SearchPatients(r.Context(), searchBy, query)
	if err != nil {
		s.logger.Error("patient search failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	patients := make([]domain.PatientSummary, 0, len(accounts))
	for _, a := range accounts {
		patients = append(patients, domain.PatientSummary{ID: int(a.ID), Username: a.Username, Email: a.Email})
	}
	respondWithJSON(w, http.StatusOK, patients)
}

func (s *Server) handlePatientGraph(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Patient not found.")
		return
	}
	patient, err := s.accounts.FindByID(r.Context(), id)
	if err != nil || patient.Role != domain.RolePatient {
		writeDetail(w, http.StatusNotFound, "Patient not found.")
		return
	}
	respondWithJSON(w, http.StatusOK, domain.PatientGraph{WeekData: s.progress.WeekData(patient.ID)})
}
