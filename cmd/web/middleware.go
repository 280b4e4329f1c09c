package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/justinas/nosurf"
	"github.com/myrjola/mavis/internal/contexthelpers"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/random"
	"github.com/oklog/ulid/v2"
)

func (app *application) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			nonceLength uint = 24
			nonce       string
			err         error
		)
		if nonce, err = random.Letters(nonceLength); err != nil {
			app.serverError(w, r, errors.Wrap(err, "generate CSP nonce"))
			return
		}
		r = contexthelpers.SetCSPNonce(r, nonce)

		w.Header().Set("Content-Security-Policy",
			fmt.Sprintf(`script-src 'nonce-%s' 'strict-dynamic' https: http:;
				   object-src 'none';
				   base-uri 'none';`, nonce))

		w.Header().Set("Referrer-Policy", "origin-when-cross-origin")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-XSS-Protection", "0")

		next.ServeHTTP(w, r)
	})
}

func cacheForeverHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			proto  = r.Proto
			method = r.Method
			uri    = r.URL.RequestURI()
			start  = time.Now()
		)

		next.ServeHTTP(w, r)

		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "handled request",
			slog.String("proto", proto),
			slog.String("method", method),
			slog.String("uri", uri),
			slog.Duration("duration", time.Since(start)))
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, r, errors.New("recovered panic", slog.String("panic", fmt.Sprint(err))))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// serverSentEventMiddleware makes our session library scs work with Server Sent Events (SSE).
// Use this instead of app.sessionManager.LoadAndSave.
// See https://github.com/alexedwards/scs/issues/141#issuecomment-1807075358
func (app *application) serverSentEventMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		cookie, err := r.Cookie(app.sessionManager.Cookie.Name)
		if err == nil {
			token = cookie.Value
		}
		ctx, err := app.sessionManager.Load(r.Context(), token)
		if err != nil {
			app.serverError(w, r, errors.Wrap(err, "load session"))
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// visitor identifies the planning session of the request. New visitors get a fresh id stored in their session.
func (app *application) visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		visitorID := app.sessionManager.GetString(ctx, string(visitorIDSessionKey))
		if visitorID == "" {
			visitorID = ulid.Make().String()
			app.sessionManager.Put(ctx, string(visitorIDSessionKey), visitorID)
		}
		r = r.WithContext(logging.WithAttrs(ctx, slog.String("visitor_id", visitorID)))
		r = contexthelpers.SetVisitorID(r, visitorID)

		next.ServeHTTP(w, r)
	})
}

// knownVisitor is visitor for routes that cannot save the session. Requests without a visitor id get 204 No Content,
// which also tells an EventSource not to reconnect; the page mints the id before it opens the stream.
func (app *application) knownVisitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		visitorID := app.sessionManager.GetString(ctx, string(visitorIDSessionKey))
		if visitorID == "" {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "stream requested without a visitor id")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		r = r.WithContext(logging.WithAttrs(ctx, slog.String("visitor_id", visitorID)))
		r = contexthelpers.SetVisitorID(r, visitorID)

		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles the mutating requests of each visitor.
func (app *application) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visitorID := contexthelpers.VisitorID(r.Context())
		if !app.limiter.allow(visitorID) {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			app.clientError(w, r, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (app *application) timeout(next http.Handler) http.Handler {
	return timeoutHandler(next, defaultTimeout)
}

func commonContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = contexthelpers.SetCurrentPath(r, r.URL.Path)
		r = contexthelpers.SetCSRFToken(r, nosurf.Token(r))
		next.ServeHTTP(w, r)
	})
}

// noSurf implements CSRF protection using https://github.com/justinas/nosurf
func noSurf(next http.Handler) http.Handler {
	csrfHandler := nosurf.New(next)
	csrfHandler.SetBaseCookie(http.Cookie{ //nolint:exhaustruct // defaults are fine for the rest
		HttpOnly: true,
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	return csrfHandler
}
