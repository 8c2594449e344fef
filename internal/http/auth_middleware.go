package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

// authInfo identifies the caller. Player routes set UserID, admin routes set
// AdminID and Username.
type authInfo struct {
	UserID   string
	AdminID  int64
	Username string
}

const contextKeyAuth authContextKey = "gamebackend-auth-info"

// contextSetter lets handlers publish an enriched context back to the
// outermost middleware, which only sees the original request.
type contextSetter interface {
	SetContext(context.Context)
}

// requireUser ensures the request carries a valid player access token and
// that the player is not banned. Ban lookup failures let the request through.
func (r *Router) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Missing or invalid Authorization header")
			return
		}
		userID, err := r.auth.Authorize(token)
		if err != nil {
			r.logger.Debug("access token rejected", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired access token")
			return
		}
		ctx := r.publishAuth(w, req, authInfo{UserID: userID})

		banned, err := r.auth.Banned(ctx, userID)
		if err != nil {
			r.logger.Warn("ban check failed, allowing request", "user_id", userID, "error", err)
		} else if banned {
			writeError(w, http.StatusForbidden, codeForbidden, "Your account has been banned")
			return
		}
		next(w, req.WithContext(ctx))
	}
}

// requireAdmin ensures the request carries a valid admin token.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Missing admin token")
			return
		}
		claims, err := r.admin.Verify(token)
		if err != nil {
			r.logger.Warn("admin token rejected", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired admin token")
			return
		}
		ctx := r.publishAuth(w, req, authInfo{AdminID: claims.AdminID, Username: claims.Username})
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) publishAuth(w http.ResponseWriter, req *http.Request, info authInfo) context.Context {
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(ctx)
	}
	return ctx
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
