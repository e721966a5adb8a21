package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"idhub/internal/auth/service"
	"idhub/internal/identity"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/platform/secrets"
)

const (
	stateCookie    = "idhub_oauth_state"
	verifierCookie = "idhub_oauth_verifier"
	returnToCookie = "idhub_return_to"

	providerFlowMaxAge = 600
)

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req identity.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(ctx, w, "invalid register request", err)
		return
	}
	user, err := h.identities.Register(ctx, req)
	if err != nil {
		h.writeFailure(ctx, w, "registration rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		Message: "User registered successfully",
		UserID:  user.ID,
	})
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(r.Context(), w, "invalid login request", err)
		return
	}
	h.login(w, r, identity.PasswordAssertion{Email: req.Email, Password: req.Password})
}

type idTokenLoginRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

func (h *Handler) handleIDTokenLogin(w http.ResponseWriter, r *http.Request) {
	var req idTokenLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(r.Context(), w, "invalid id token login request", err)
		return
	}
	h.login(w, r, identity.IDTokenAssertion{Provider: req.Provider, Token: req.IDToken})
}

// login resolves a, sets the session cookie and returns the session.
func (h *Handler) login(w http.ResponseWriter, r *http.Request, a identity.Assertion) {
	res, ok := h.resolveSession(w, r, a)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request, a identity.Assertion) (*service.LoginResult, bool) {
	ctx := r.Context()
	res, err := h.engine.Login(ctx, a)
	if err != nil {
		h.writeFailure(ctx, w, "login rejected", err)
		return nil, false
	}
	h.setSessionCookie(w, res)
	return res, true
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// handleMagicLinkRequest mails a single-use login link. The first login
// through it provisions the user.
func (h *Handler) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req magicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(ctx, w, "invalid magic link request", err)
		return
	}
	if err := h.identities.RequestMagicLink(ctx, req.Email); err != nil {
		h.writeFailure(ctx, w, "magic link request rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "Login link sent",
	})
}

func (h *Handler) handleMagicLinkVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.writeFailure(r.Context(), w, "magic link without token", dErrors.New(dErrors.CodeInvalidRequest, "token is required"))
		return
	}
	res, ok := h.resolveSession(w, r, identity.MagicLinkAssertion{Token: token})
	if !ok {
		return
	}
	h.finishBrowserLogin(w, r, res, "/")
}

func (h *Handler) handleProviderStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers.Get(name)
	if !ok {
		h.writeFailure(ctx, w, "unknown provider", dErrors.New(dErrors.CodeNotFound, "provider is not configured"))
		return
	}

	state, err := secrets.Generate()
	if err != nil {
		h.writeFailure(ctx, w, "failed to start provider login", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate state"))
		return
	}
	verifier := oauth2.GenerateVerifier()

	path := providerPath(name)
	h.setFlowCookie(w, stateCookie, state, path)
	h.setFlowCookie(w, verifierCookie, verifier, path)
	if returnTo := r.URL.Query().Get("return_to"); isLocalPath(returnTo) {
		h.setFlowCookie(w, returnToCookie, returnTo, path)
	}

	http.Redirect(w, r, provider.AuthCodeURL(state, oauth2.S256ChallengeFromVerifier(verifier)), http.StatusFound)
}

func (h *Handler) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers.Get(name)
	if !ok {
		h.writeFailure(ctx, w, "unknown provider", dErrors.New(dErrors.CodeNotFound, "provider is not configured"))
		return
	}

	q := r.URL.Query()
	if upstream := q.Get("error"); upstream != "" {
		h.writeFailure(ctx, w, "provider declined login", dErrors.New(dErrors.CodeAccessDenied, "provider returned "+upstream))
		return
	}
	state, _ := r.Cookie(stateCookie)
	verifier, _ := r.Cookie(verifierCookie)
	if state == nil || verifier == nil || q.Get("code") == "" || !secrets.Equal(state.Value, q.Get("state")) {
		h.writeFailure(ctx, w, "provider callback state mismatch", dErrors.New(dErrors.CodeInvalidRequest, "login state is missing or does not match"))
		return
	}

	path := providerPath(name)
	returnTo := "/"
	if c, err := r.Cookie(returnToCookie); err == nil && isLocalPath(c.Value) {
		returnTo = c.Value
	}
	h.clearFlowCookie(w, stateCookie, path)
	h.clearFlowCookie(w, verifierCookie, path)
	h.clearFlowCookie(w, returnToCookie, path)

	id, err := provider.Exchange(ctx, q.Get("code"), verifier.Value)
	if err != nil {
		if errors.Is(err, identity.ErrAssertionRejected) {
			err = dErrors.Wrap(err, dErrors.CodeInvalidCredentials, "provider rejected the login")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "provider unavailable")
		}
		h.writeFailure(ctx, w, "provider exchange failed", err)
		return
	}

	res, ok := h.resolveSession(w, r, identity.ProviderAssertion{Identity: *id})
	if !ok {
		return
	}
	h.finishBrowserLogin(w, r, res, returnTo)
}

// finishBrowserLogin redirects browsers to target and returns the session
// to API callers.
func (h *Handler) finishBrowserLogin(w http.ResponseWriter, r *http.Request, res *service.LoginResult, target string) {
	if wantsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func providerPath(name string) string {
	return "/auth/providers/" + name
}

// isLocalPath accepts same-origin absolute paths only.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}

func (h *Handler) setFlowCookie(w http.ResponseWriter, name, value, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   providerFlowMaxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearFlowCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
