package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"resumatch.org/internal/audit"
	"resumatch.org/internal/identity"
	"resumatch.org/internal/obs"
)

const (
	anchorCookieTTL         = 10 * time.Minute
	createPasswordCookieTTL = 15 * time.Minute
)

type signupSendOTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required,max=128"`
}

type signupVerifyOTPRequest struct {
	Token string `json:"token" validate:"required"`
	Otp   string `json:"otp"`
}

type resendOTPRequest struct {
	Token string `json:"token" validate:"required"`
}

type createPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userInfo struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (a *API) handleSignupSendOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupSendOTPRequest
	if !a.readBody(w, r, &req) {
		return
	}

	res, err := a.svc.RequestSignupOTP(r.Context(), req.Email, req.FullName)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup.otp_requested", map[string]any{
		"email": identity.NormalizeEmail(req.Email),
	})

	a.setCookie(w, res.AnchorName, res.AnchorValue, anchorCookieTTL)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "OTP sent to your email",
		Mode:    identity.ModeOTPVerify,
		Token:   res.ClientToken,
	})
}

func (a *API) handleSignupVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupVerifyOTPRequest
	if !a.readBody(w, r, &req) {
		return
	}

	anchor := cookieValue(r, identity.AnchorCookieEmailOTP)
	ticket, err := a.svc.VerifySignupOTP(r.Context(), req.Token, anchor, req.Otp)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup.otp_verified", nil)

	a.clearCookie(w, identity.AnchorCookieEmailOTP)
	a.setCookie(w, identity.CookieCreatePassword, ticket, createPasswordCookieTTL)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "OTP verified",
		Mode:    identity.ModeCreatePassword,
	})
}

func (a *API) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resendOTPRequest
	if !a.readBody(w, r, &req) {
		return
	}

	res, err := a.svc.ResendSignupOTP(r.Context(), req.Token)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup.otp_resent", nil)

	a.setCookie(w, res.AnchorName, res.AnchorValue, anchorCookieTTL)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "OTP sent to your email",
		Mode:    identity.ModeOTPVerify,
		Token:   res.ClientToken,
	})
}

func (a *API) handleCreatePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createPasswordRequest
	if !a.readBody(w, r, &req) {
		return
	}

	ticket := cookieValue(r, identity.CookieCreatePassword)
	user, tokens, err := a.svc.CreatePassword(r.Context(), ticket, req.Password)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup.completed", map[string]any{
		"user_id": user.ID,
	})

	a.clearCookie(w, identity.CookieCreatePassword)
	a.setCookie(w, identity.CookieRefreshToken, tokens.RefreshToken, time.Until(tokens.ExpiresAt))
	writeJSON(w, http.StatusCreated, authResponse{
		Success:     true,
		Message:     "Password created successfully",
		Mode:        identity.ModeHome,
		AccessToken: tokens.AccessToken,
		SessionID:   tokens.SessionID,
	})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signInRequest
	if !a.readBody(w, r, &req) {
		return
	}

	user, tokens, err := a.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
		"user_id": user.ID,
	})

	a.setCookie(w, identity.CookieRefreshToken, tokens.RefreshToken, time.Until(tokens.ExpiresAt))
	writeJSON(w, http.StatusCreated, authResponse{
		Success:     true,
		Message:     "Signed in successfully",
		Mode:        identity.ModeHome,
		AccessToken: tokens.AccessToken,
		SessionID:   tokens.SessionID,
	})
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	refresh := cookieValue(r, identity.CookieRefreshToken)
	user, access, err := a.svc.RotateAccessToken(r.Context(), refresh)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", map[string]any{
		"user_id": user.ID,
	})

	writeJSON(w, http.StatusOK, authResponse{
		Success:     true,
		AccessToken: access,
	})
}

func (a *API) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	user, err := a.svc.UserInfo(r.Context(), userID)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User: &userInfo{
			ID:            user.ID,
			Email:         user.Email,
			FullName:      user.FullName,
			Status:        string(user.Status),
			EmailVerified: user.EmailVerified,
			CreatedAt:     user.CreatedAt,
		},
	})
}

// readBody decodes and validates the request payload, writing the failure
// response itself when the payload is unusable.
func (a *API) readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error(), "")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, validationMessage(err), "")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "a valid email is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}

// writeAuthError maps domain failures onto the response envelope. Distinct
// OTP failures keep distinct messages; the mode field routes the client back
// to the right step.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *identity.TooManyAttemptsError
	switch {
	case errors.Is(err, identity.ErrAlreadyExists):
		writeFailure(w, http.StatusBadRequest, "User already exists with this email", "")

	case errors.Is(err, identity.ErrMissingOtp):
		obs.ObserveOTPVerifyFailure("missing_otp")
		writeFailure(w, http.StatusBadRequest, "OTP is required", "")
	case errors.Is(err, identity.ErrMissingAnchor):
		obs.ObserveOTPVerifyFailure("missing_anchor")
		writeFailure(w, http.StatusBadRequest, "Session expired, please request a new OTP", identity.ModeVerifySignup)
	case errors.Is(err, identity.ErrChallengeNotFound):
		obs.ObserveOTPVerifyFailure("challenge_not_found")
		writeFailure(w, http.StatusBadRequest, "No pending OTP found, please request a new one", identity.ModeVerifySignup)
	case errors.Is(err, identity.ErrAnchorMismatch):
		obs.ObserveOTPVerifyFailure("anchor_mismatch")
		writeFailure(w, http.StatusBadRequest, "Invalid session", identity.ModeVerifySignup)
	case errors.As(err, &locked):
		obs.ObserveOTPVerifyFailure("locked_out")
		writeFailure(w, http.StatusForbidden, locked.Error(), "")
	case errors.Is(err, identity.ErrInvalidOtp):
		obs.ObserveOTPVerifyFailure("invalid_otp")
		writeFailure(w, http.StatusBadRequest, "Invalid OTP", "")
	case errors.Is(err, identity.ErrOtpExpired):
		obs.ObserveOTPVerifyFailure("expired")
		writeFailure(w, http.StatusBadRequest, "Your OTP has been expired", "")
	case errors.Is(err, identity.ErrResendCooldown):
		writeFailure(w, http.StatusBadRequest, "Please try requesting OTP after two minutes", "")
	case errors.Is(err, identity.ErrInvalidClientToken):
		writeFailure(w, http.StatusBadRequest, "Invalid session", identity.ModeVerifySignup)

	case errors.Is(err, identity.ErrNotFound):
		writeFailure(w, http.StatusBadRequest, "User does not exist, please sign up", identity.ModeSignup)
	case errors.Is(err, identity.ErrNotVerified):
		writeFailure(w, http.StatusBadRequest, "Please complete your signup", identity.ModeSignup)
	case errors.Is(err, identity.ErrWrongPassword):
		writeFailure(w, http.StatusBadRequest, "Incorrect password", "")
	case errors.Is(err, identity.ErrUserInactive):
		writeFailure(w, http.StatusForbidden, "Your account is not active", "")

	case errors.Is(err, identity.ErrRefreshExpired):
		a.clearCookie(w, identity.CookieRefreshToken)
		writeFailure(w, http.StatusForbidden, "Refresh token expired, please sign in again", identity.ModeSignup)
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "Unauthorized", "")

	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
