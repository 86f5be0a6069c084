package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/edustack.json.
const wellKnownManifest = `{
  "name": "EduStack Identity",
  "description": "Identity server for the EduStack school management system",
  "version": "0.1.0",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "token": "/auth/v1/token",
    "grant_types": ["password", "refresh_token"]
  },
  "endpoints": {
    "logout": "/auth/v1/logout",
    "user": "/auth/v1/user",
    "users": "/rest/v1/users"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
