package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/session"
)

type addLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type changeQuantityRequest struct {
	Delta *int `json:"delta"`
}

type cityRequest struct {
	CityID string `json:"cityId"`
}

type zoneRequest struct {
	ZoneID string `json:"zoneId"`
}

type promoRequest struct {
	Code string `json:"code"`
}

type paymentRequest struct {
	Method     string `json:"method"`
	ProviderID string `json:"providerId"`
}

type guestTokenResponse struct {
	Token       string `json:"token"`
	AnonymousID string `json:"anonymousId"`
	ExpiresIn   int    `json:"expiresIn"`
}

func sessionFor(c *gin.Context, sessions SessionManager) (*session.Session, bool) {
	sess, err := sessions.Resolve(guestIDFrom(c), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, domain.Invalid("body", "malformed JSON"))
		return false
	}
	return true
}

func respondSummary(c *gin.Context, summary session.Summary, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func issueGuestTokenHandler(guests GuestTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, anonID, err := guests.Issue(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(guestTokenHeader, token)
		c.JSON(http.StatusCreated, guestTokenResponse{
			Token:       token,
			AnonymousID: anonID,
			ExpiresIn:   guests.TTLSeconds(),
		})
	}
}

func citiesHandler(places Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		cities, err := places.Cities(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if cities == nil {
			cities = []domain.City{}
		}
		c.JSON(http.StatusOK, cities)
	}
}

func loginHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if !identity.Authenticated() {
			respondError(c, domain.ErrAuthRequired)
			return
		}
		sess, report, err := sessions.Login(c.Request.Context(), guestIDFrom(c), identity)
		if err != nil {
			respondError(c, err)
			return
		}
		summary, err := sess.Summary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cart": summary, "merge": report})
	}
}

// logoutHandler returns the shopper to a guest session. A caller without a
// guest token gets a fresh one.
func logoutHandler(sessions SessionManager, guests GuestTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		guestID := guestIDFrom(c)
		var issued *guestTokenResponse
		if guestID == "" {
			token, anonID, err := guests.Issue(ctx)
			if err != nil {
				respondError(c, err)
				return
			}
			guestID = anonID
			issued = &guestTokenResponse{Token: token, AnonymousID: anonID, ExpiresIn: guests.TTLSeconds()}
			c.Header(guestTokenHeader, token)
		}

		sess := sessions.Logout(guestID, identityFrom(c))
		summary, err := sess.Summary(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		body := gin.H{"cart": summary}
		if issued != nil {
			body["guest"] = issued
		}
		c.JSON(http.StatusOK, body)
	}
}

func summaryHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.Summary(c.Request.Context())
		respondSummary(c, summary, err)
	}
}

func cartCountHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		count, err := sess.RefreshCount(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"itemCount": count})
	}
}

func addLineHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addLineRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.AddLine(c.Request.Context(), req.ProductID, req.Quantity)
		respondSummary(c, summary, err)
	}
}

func changeQuantityHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changeQuantityRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Delta == nil {
			respondError(c, domain.Invalid("delta", "required"))
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.ChangeQuantity(c.Request.Context(), c.Param("productId"), *req.Delta)
		respondSummary(c, summary, err)
	}
}

func removeLineHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.RemoveLine(c.Request.Context(), c.Param("productId"))
		respondSummary(c, summary, err)
	}
}

func selectCityHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cityRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.SelectCity(c.Request.Context(), req.CityID)
		respondSummary(c, summary, err)
	}
}

func selectZoneHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req zoneRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.SelectZone(c.Request.Context(), req.ZoneID)
		respondSummary(c, summary, err)
	}
}

func applyPromoHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req promoRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.ApplyPromo(c.Request.Context(), req.Code)
		respondSummary(c, summary, err)
	}
}

func cancelPromoHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		summary, err := sess.CancelPromo(c.Request.Context())
		respondSummary(c, summary, err)
	}
}
