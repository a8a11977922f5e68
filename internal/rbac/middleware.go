package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allow(w, r, next, perm)
		})
	}
}

// RequireReadWrite checks readPerm for safe methods and writePerm for the rest.
func RequireReadWrite(readPerm, writePerm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perm := writePerm
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				perm = readPerm
			}
			allow(w, r, next, perm)
		})
	}
}

func allow(w http.ResponseWriter, r *http.Request, next http.Handler, perm string) {
	role := RoleFromContext(r.Context())
	if role == "" || !defaultChecker.Has(role, perm) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	next.ServeHTTP(w, r)
}
