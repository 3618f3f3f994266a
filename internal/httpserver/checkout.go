package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/checkout"
)

func respondCheckout(c *gin.Context, view checkout.View, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func checkoutViewHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sess.Checkout())
	}
}

func advanceHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		view, err := sess.AdvanceCheckout()
		respondCheckout(c, view, err)
	}
}

func backHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		view, err := sess.BackCheckout()
		respondCheckout(c, view, err)
	}
}

func recipientHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.Recipient
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		view, err := sess.SetRecipient(req)
		respondCheckout(c, view, err)
	}
}

func paymentHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		view, err := sess.SelectPayment(domain.ParsePaymentMethod(req.Method), req.ProviderID)
		respondCheckout(c, view, err)
	}
}

func paymentMethodsHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		methods, err := sess.PaymentMethods(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if methods == nil {
			methods = []domain.PaymentOption{}
		}
		c.JSON(http.StatusOK, methods)
	}
}

func submitHandler(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFor(c, sessions)
		if !ok {
			return
		}
		outcome, err := sess.SubmitOrder(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if outcome.NeedsRedirect() {
			c.JSON(http.StatusOK, gin.H{"redirectUrl": outcome.RedirectURL})
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmed": true})
	}
}
