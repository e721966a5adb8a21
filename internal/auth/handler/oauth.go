package handler

import (
	"net/http"
	"net/url"
	"strings"

	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/platform/middleware/auth"
)

// handleToken accepts JSON or form-encoded bodies. Client credentials may
// also arrive as HTTP Basic auth.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := parseTokenRequest(w, r)
	if err != nil {
		h.writeFailure(ctx, w, "invalid token request", err)
		return
	}

	res, err := h.engine.ExchangeToken(ctx, req)
	if err != nil {
		if _, _, basic := r.BasicAuth(); basic && dErrors.HasCode(err, dErrors.CodeInvalidClient) {
			w.Header().Set("WWW-Authenticate", `Basic realm="idhub"`)
		}
		h.writeFailure(ctx, w, "token exchange rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*models.TokenRequest, error) {
	var req models.TokenRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "invalid form body")
		}
		req = models.TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
		}
	}
	if id, secret, ok := r.BasicAuth(); ok && req.ClientSecret == "" {
		if req.ClientID == "" {
			req.ClientID = id
		}
		if req.ClientID == id {
			req.ClientSecret = secret
		}
	}
	return &req, nil
}

// handleAuthorize issues a code for the session user and sends the browser
// back to the client. API callers asking for JSON get the result inline.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.GetClaims(ctx)
	if claims == nil {
		h.writeFailure(ctx, w, "authorize without session", dErrors.New(dErrors.CodeUnauthorized, "login required"))
		return
	}

	req, err := parseAuthorizationRequest(w, r)
	if err != nil {
		h.writeFailure(ctx, w, "invalid authorization request", err)
		return
	}
	req.UserID = claims.UserID

	res, err := h.engine.StartAuthorization(ctx, req)
	if err != nil {
		h.writeFailure(ctx, w, "authorization rejected", err)
		return
	}

	if wantsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}
	target, err := callbackURL(res)
	if err != nil {
		h.writeFailure(ctx, w, "invalid redirect_uri", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func parseAuthorizationRequest(w http.ResponseWriter, r *http.Request) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	if r.Method == http.MethodPost && isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "invalid form body")
	}
	req = models.AuthorizationRequest{
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	}
	return &req, nil
}

// callbackURL appends code and state to the registered redirect URI,
// keeping any query it already carries.
func callbackURL(res *models.AuthorizationResult) (string, error) {
	u, err := url.Parse(res.RedirectURI)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not a valid URI")
	}
	q := u.Query()
	q.Set("code", res.Code)
	if res.State != "" {
		q.Set("state", res.State)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type userInfoResponse struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Role          string `json:"role"`
}

// handleUserInfo serves the current profile to any client holding a valid
// access token. Only the Authorization header is read.
func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		w.Header().Set("WWW-Authenticate", `Bearer`)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
		return
	}
	claims, err := h.tokens.ValidateIssued(strings.TrimSpace(token))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		h.writeFailure(ctx, w, "userinfo token rejected", err)
		return
	}

	user, err := h.engine.UserInfo(ctx, claims.Subject)
	if err != nil {
		h.writeFailure(ctx, w, "userinfo lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userInfoResponse{
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: user.IsEmailVerified(),
		Name:          user.Name,
		Picture:       user.Image,
		Role:          string(user.Role),
	})
}
