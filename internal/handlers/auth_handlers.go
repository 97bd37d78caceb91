package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/smsauth/smsauth/internal/models"
	"github.com/smsauth/smsauth/internal/service"
)

// UserStore is the slice of the user repository the handlers need.
type UserStore interface {
	GetOrCreate(ctx context.Context, phoneNumber string) (*models.User, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error)
}

type AuthHandlers struct {
	otpService *service.OTPService
	jwtService *service.JWTService
	userRepo   UserStore
	logger     *logrus.Logger
}

func NewAuthHandlers(
	otpService *service.OTPService,
	jwtService *service.JWTService,
	userRepo UserStore,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		otpService: otpService,
		jwtService: jwtService,
		userRepo:   userRepo,
		logger:     logger,
	}
}

type SendCodeRequest struct {
	Phone string `json:"phone"`
}

type SendCodeResponse struct {
	OK bool `json:"ok"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type VerifyCodeResponse struct {
	OK        bool         `json:"ok"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForCode maps service error codes to HTTP statuses. Throttling and
// attempt exhaustion are 429s; provider failures are 502s; everything else
// the caller can correct is a 400.
var statusForCode = map[string]int{
	service.ErrInvalidPhone.Code:    http.StatusBadRequest,
	service.ErrResendThrottled.Code: http.StatusTooManyRequests,
	service.ErrDeliveryFailed.Code:  http.StatusBadGateway,
	service.ErrCodeExpired.Code:     http.StatusBadRequest,
	service.ErrTooManyAttempts.Code: http.StatusTooManyRequests,
	service.ErrInvalidCode.Code:     http.StatusBadRequest,
}

func (h *AuthHandlers) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Phone) == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone is required")
		return
	}

	if err := h.otpService.Send(r.Context(), req.Phone); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, SendCodeResponse{OK: true})
}

func (h *AuthHandlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone and code are required")
		return
	}

	token, phoneNumber, err := h.otpService.Verify(r.Context(), req.Phone, strings.TrimSpace(req.Code))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	userResp := UserResponse{Phone: phoneNumber}
	user, err := h.userRepo.GetOrCreate(r.Context(), phoneNumber)
	if err != nil {
		// The credential is already issued; a user-record hiccup should
		// not fail the login.
		h.logger.WithError(err).Error("Failed to get or create user")
	} else {
		userResp.Name = user.Name
	}

	h.respondWithJSON(w, http.StatusOK, VerifyCodeResponse{
		OK:        true,
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.jwtService.TokenExpiry().Seconds()),
		User:      userResp,
	})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	phoneNumber, ok := r.Context().Value("phone").(string)
	if !ok || phoneNumber == "" {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	resp := UserResponse{Phone: phoneNumber}
	if user, err := h.userRepo.GetByPhoneNumber(r.Context(), phoneNumber); err == nil && user != nil {
		resp.Name = user.Name
	}

	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandlers) respondServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status, ok := statusForCode[svcErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		h.respondWithError(w, status, svcErr.Code, svcErr.Message)
		return
	}

	h.logger.WithError(err).Error("Unexpected service error")
	h.respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
