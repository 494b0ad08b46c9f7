package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type userResponse struct {
	User *models.PublicUser `json:"user"`
}

type listUsersResponse struct {
	Items    []models.PublicUser `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

func (s *HTTPServer) Me(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}

func (s *HTTPServer) ChangeMyPassword(w http.ResponseWriter, r *http.Request) {
	var p ChangePasswordPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	err := s.users.ChangePassword(r.Context(), claimsFrom(r.Context()).Subject, p.CurrentPassword, p.NewPassword)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.UserFilter{
		Search: q.Get("search"),
		Status: models.Status(q.Get("status")),
		Role:   models.Role(q.Get("role")),
	}
	var err error
	if filter.Page, err = intParam(q.Get("page"), 1); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	if filter.PageSize, err = intParam(q.Get("pageSize"), 0); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	items, total, err := s.users.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	// report the page actually served after clamping
	page, pageSize := max(filter.Page, 1), filter.PageSize
	if pageSize < 1 {
		pageSize = services.DefaultPageSize
	}
	pageSize = min(pageSize, services.MaxPageSize)

	writeJSON(w, http.StatusOK, listUsersResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (s *HTTPServer) CreateUser(w http.ResponseWriter, r *http.Request) {
	var p CreateUserPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	u, err := s.users.Create(r.Context(), p.Name, p.Email, p.Password, p.Role)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: u})
}

func (s *HTTPServer) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}

func (s *HTTPServer) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var p UpdateUserPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	u, err := s.users.Update(r.Context(), chi.URLParam(r, "id"), p.update())
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}

func (s *HTTPServer) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", common.ErrValidation, v)
	}
	return n, nil
}
