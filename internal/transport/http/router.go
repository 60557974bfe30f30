// Package httptransport assembles the HTTP surface. The route policy table
// lives here: which guard fronts which handler group is decided in one place,
// not per handler.
package httptransport

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "girok/internal/auth/handler"
	consenthandler "girok/internal/consent/handler"
	dsrhandler "girok/internal/dsr/handler"
	legalhandler "girok/internal/legal/handler"
	"girok/internal/platform/middleware"
	sanctionhandler "girok/internal/sanction/handler"
)

// requestTimeout bounds every request; downstream DB and cache calls inherit
// the deadline.
const requestTimeout = 30 * time.Second

// Deps carries everything the router mounts.
type Deps struct {
	Logger   *slog.Logger
	Sessions middleware.SessionValidator
	Tokens   middleware.BearerValidator
	Services middleware.ServiceRegistry
	Health   *Health

	Auth      *authhandler.Handler
	Sanctions *sanctionhandler.Handler
	Legal     *legalhandler.Handler
	Consents  *consenthandler.Handler
	DSR       *dsrhandler.Handler
}

// NewRouter builds the full route table.
//
// Guard policy:
//   - X-Service-Id:  register/login surface and the sanction enforcement query
//   - bearer token or session cookie: account self-service (auth, consents,
//     DSR submission); a presented bearer token is authoritative
//   - X-Operator-Id: moderation, legal version cut, DSR case working
//   - X-Subject-Id:  sanction appeal submission
//   - unguarded:     health, metrics, legal document reads
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)

	d.Health.Register(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	d.Legal.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireServiceID(d.Services, d.Logger))
		d.Auth.RegisterPublic(r)
		d.Sanctions.RegisterEnforcement(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Sessions, d.Tokens, d.Logger))
		d.Auth.RegisterProtected(r)
		d.Consents.Register(r)
		d.DSR.RegisterSubject(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator)
		d.Sanctions.RegisterOperator(r)
		d.Legal.RegisterOperator(r)
		d.DSR.RegisterOperator(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSubject)
		d.Sanctions.RegisterSubject(r)
	})

	return r
}
