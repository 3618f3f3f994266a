package httpserver

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/cartsync"
	"storefront-core/internal/service/session"
)

type SessionManager interface {
	Resolve(guestID string, identity domain.Identity) (*session.Session, error)
	Login(ctx context.Context, guestID string, identity domain.Identity) (*session.Session, cartsync.MergeReport, error)
	Logout(guestID string, identity domain.Identity) *session.Session
}

type GuestTokens interface {
	Issue(ctx context.Context) (token, anonymousID string, err error)
	LookupByToken(ctx context.Context, token string) (string, error)
	TTLSeconds() int
}

type UserTokens interface {
	LookupByToken(ctx context.Context, token string) (domain.Identity, error)
}

type Directory interface {
	Cities(ctx context.Context) ([]domain.City, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Sessions       SessionManager
	Guests         GuestTokens
	Users          UserTokens
	Places         Directory
	Storage        Pinger
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Sessions == nil || deps.Guests == nil || deps.Users == nil || deps.Places == nil {
		return nil, errors.New("httpserver: sessions, guest tokens, user tokens and places are required")
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.CORSOrigins)))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Storage))

	router.POST("/guest/token", issueGuestTokenHandler(deps.Guests))
	router.GET("/places/cities", citiesHandler(deps.Places))

	api := router.Group("/")
	api.Use(requestTimeout(deps.RequestTimeout), identityMiddleware(deps.Guests, deps.Users))

	api.POST("/session/login", loginHandler(deps.Sessions))
	api.POST("/session/logout", logoutHandler(deps.Sessions, deps.Guests))

	api.GET("/cart", summaryHandler(deps.Sessions))
	api.GET("/cart/count", cartCountHandler(deps.Sessions))
	api.POST("/cart/lines", addLineHandler(deps.Sessions))
	api.PATCH("/cart/lines/:productId", changeQuantityHandler(deps.Sessions))
	api.DELETE("/cart/lines/:productId", removeLineHandler(deps.Sessions))

	api.PUT("/location/city", selectCityHandler(deps.Sessions))
	api.PUT("/location/zone", selectZoneHandler(deps.Sessions))

	api.POST("/promo", applyPromoHandler(deps.Sessions))
	api.DELETE("/promo", cancelPromoHandler(deps.Sessions))
	api.GET("/totals", summaryHandler(deps.Sessions))

	api.GET("/checkout", checkoutViewHandler(deps.Sessions))
	api.POST("/checkout/advance", advanceHandler(deps.Sessions))
	api.POST("/checkout/back", backHandler(deps.Sessions))
	api.PUT("/checkout/recipient", recipientHandler(deps.Sessions))
	api.PUT("/checkout/payment", paymentHandler(deps.Sessions))
	api.GET("/checkout/payment-methods", paymentMethodsHandler(deps.Sessions))
	api.POST("/checkout/submit", submitHandler(deps.Sessions))

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", guestTokenHeader},
		ExposeHeaders: []string{guestTokenHeader, requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			// Credentials cannot be combined with a wildcard origin.
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
