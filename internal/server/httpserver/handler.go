package httpserver

import (
	"net/http"
)

func (s *HTTPServer) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *HTTPServer) Register(w http.ResponseWriter, r *http.Request) {
	var p RegisterPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	session, err := s.auth.Register(r.Context(), p.Name, p.Email, p.Password)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) Login(w http.ResponseWriter, r *http.Request) {
	var p LoginPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	session, err := s.auth.Login(r.Context(), p.Email, p.Password)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) Refresh(w http.ResponseWriter, r *http.Request) {
	var p RefreshPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	pair, err := s.auth.Refresh(r.Context(), p.RefreshToken)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (s *HTTPServer) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.LogoutAll(r.Context(), claimsFrom(r.Context()).Subject); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forgotPasswordResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token,omitempty"`
}

func (s *HTTPServer) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var p ForgotPasswordPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	token, err := s.auth.ForgotPassword(r.Context(), p.Email)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, forgotPasswordResponse{OK: true, Token: token})
}

func (s *HTTPServer) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var p ResetPasswordPayload
	if err := decode(r, &p); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), p.Token, p.Password); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	token, err := s.auth.RequestEmailVerification(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, forgotPasswordResponse{OK: true, Token: token})
}

func (s *HTTPServer) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := s.auth.VerifyEmail(r.Context(), token); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
}
