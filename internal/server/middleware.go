package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openline-hq/caseguard/internal/types"
)

type ctxKey int

const viewerKey ctxKey = iota

// ViewerFromContext returns the viewer identity attached by ViewerContext.
func ViewerFromContext(ctx context.Context) (types.ViewerContext, bool) {
	v, ok := ctx.Value(viewerKey).(types.ViewerContext)
	return v, ok
}

// ViewerContext builds the viewer identity from the authenticated worker
// headers and the account in the URL. The gateway in front of this service
// strips and re-sets these headers after token validation, so an absent
// worker SID means an unauthenticated request.
func ViewerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workerSID := strings.TrimSpace(r.Header.Get("X-Worker-Sid"))
		if workerSID == "" {
			writeError(w, http.StatusUnauthorized, "missing worker identity")
			return
		}

		viewer := types.ViewerContext{
			AccountSID: types.AccountSID(chi.URLParam(r, "accountSid")),
			WorkerSID:  types.WorkerSID(workerSID),
			Roles:      splitRoles(r.Header.Get("X-Worker-Roles")),
		}

		ctx := context.WithValue(r.Context(), viewerKey, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
