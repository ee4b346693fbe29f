package main

import (
	"fmt"
	"net/http"
)

func (app *application) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	var (
		shared = func(next http.Handler) http.Handler {
			return app.logAndTraceRequest(secureHeaders(app.crossOriginProtection(
				commonContext(app.timeout(next)))))
		}
		noAuth = func(next http.Handler) http.Handler {
			return app.recoverPanic(shared(next))
		}
		session = func(next http.Handler) http.Handler {
			return app.recoverPanic(noCache(app.sessionManager.LoadAndSave(
				app.webAuthnHandler.AuthenticateMiddleware(shared(next)))))
		}
		mustSession = func(next http.Handler) http.Handler {
			return session(app.mustAuthenticate(next))
		}
	)

	mux.Handle("GET /program", mustSession(http.HandlerFunc(app.programGET)))
	mux.Handle("GET /weeks/{weekID}", mustSession(http.HandlerFunc(app.weekGET)))
	mux.Handle("POST /weeks/{weekID}/activate", mustSession(http.HandlerFunc(app.weekActivatePOST)))
	mux.Handle("GET /weeks/{weekID}/days/{dayID}", mustSession(http.HandlerFunc(app.sessionGET)))
	mux.Handle("POST /weeks/{weekID}/days/{dayID}/complete", mustSession(http.HandlerFunc(app.sessionCompletePOST)))

	mux.Handle("GET /preferences", mustSession(http.HandlerFunc(app.preferencesGET)))
	mux.Handle("POST /preferences", mustSession(http.HandlerFunc(app.preferencesPOST)))
	mux.Handle("GET /preferences/export-data", mustSession(http.HandlerFunc(app.exportUserDataGET)))
	mux.Handle("POST /preferences/delete-user", mustSession(http.HandlerFunc(app.deleteUserPOST)))

	mux.Handle("GET /profile", mustSession(http.HandlerFunc(app.profileGET)))
	mux.Handle("POST /profile", mustSession(http.HandlerFunc(app.profilePOST)))

	mux.Handle("POST /api/registration/start", session(http.HandlerFunc(app.beginRegistration)))
	mux.Handle("POST /api/registration/finish", session(http.HandlerFunc(app.finishRegistration)))
	mux.Handle("POST /api/login/start", session(http.HandlerFunc(app.beginLogin)))
	mux.Handle("POST /api/login/finish", session(http.HandlerFunc(app.finishLogin)))
	mux.Handle("POST /api/logout", session(http.HandlerFunc(app.logout)))
	mux.Handle("GET /api/healthy", session(http.HandlerFunc(app.healthy)))
	mux.Handle("GET /api/test/timeout", noAuth(http.HandlerFunc(app.testTimeout)))
	mux.Handle("POST /api/csp-violation", noAuth(http.HandlerFunc(app.cspViolation)))

	// Privacy page
	mux.Handle("GET /privacy", session(http.HandlerFunc(app.privacy)))

	// Home route (most specific)
	mux.Handle("GET /{$}", session(http.HandlerFunc(app.home)))

	// File server with custom 404 handling
	fileServerHandler, err := app.fileServerHandler()
	if err != nil {
		return nil, fmt.Errorf("fileServerHandler: %w", err)
	}
	mux.Handle("/", fileServerHandler)

	return mux, nil
}
