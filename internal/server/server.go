package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/notify"
	"storefront-backend/internal/usecase"
)

type Server struct {
	cfg           config.Config
	identity      *usecase.Identity
	orders        *usecase.OrderService
	payments      *usecase.PaymentService
	notifications *usecase.NotificationService
	hub           *notify.Hub
	engine        *gin.Engine
}

func New(cfg config.Config, identity *usecase.Identity, orders *usecase.OrderService,
	payments *usecase.PaymentService, notifications *usecase.NotificationService, hub *notify.Hub) *Server {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:           cfg,
		identity:      identity,
		orders:        orders,
		payments:      payments,
		notifications: notifications,
		hub:           hub,
		engine:        gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.POST("/webhooks/payment", s.handleWebhook)

	auth := api.Group("", s.authRequired)
	auth.POST("/orders", s.handleCreateOrder)
	auth.GET("/orders", s.handleListOrders)
	auth.GET("/orders/:id", s.handleGetOrder)
	auth.POST("/orders/:id/cancel", s.handleCancelOrder)
	auth.POST("/orders/:id/payment-intent", s.handleCreateIntent)
	auth.GET("/notifications", s.handleListNotifications)
	auth.GET("/notifications/stream", s.handleStream)
	auth.PATCH("/notifications/:id/read", s.handleSetNotificationRead)
	auth.DELETE("/notifications/:id", s.handleDeleteNotification)
	auth.POST("/notifications/mark-all-read", s.handleMarkAllRead)
	auth.DELETE("/notifications", s.handleDeleteNotifications)
}

func (s *Server) authRequired(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		s.fail(c, usecase.ErrUnauthorized("authorization required"))
		c.Abort()
		return
	}
	uid, email, err := s.identity.Verify(token)
	if err != nil {
		s.fail(c, usecase.ErrUnauthorized("invalid token"))
		c.Abort()
		return
	}
	c.Set("userID", uid)
	c.Set("email", email)
	c.Next()
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var in usecase.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, usecase.ErrBadRequest("invalid json"))
		return
	}
	o, err := s.orders.Create(c.Request.Context(), c.GetString("userID"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) handleListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	orders, total := s.orders.ListByUser(c.Request.Context(), c.GetString("userID"), page, pageSize)
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "page": page, "pageSize": pageSize})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	o, err := s.orders.Get(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	o, err := s.orders.Cancel(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	res, err := s.payments.CreateIntent(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleWebhook acknowledges or rejects; it never exposes internal
// state in its response. A 5xx tells the gateway to redeliver, which is
// safe under the reconciler's idempotency contract.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"received": false})
		return
	}
	err = s.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Gateway-Signature"))
	switch err.(type) {
	case nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case usecase.ErrIntegrity, usecase.ErrBadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"received": false})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"received": false})
	}
}

func (s *Server) handleListNotifications(c *gin.Context) {
	f := usecase.NotificationFilter{Type: c.Query("type")}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if v := c.Query("unread"); v != "" {
		unread := v == "true" || v == "1"
		f.Unread = &unread
	}
	items, total := s.notifications.List(c.Request.Context(), c.GetString("userID"), f)
	if items == nil {
		items = []domain.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "total": total, "page": f.Page, "pageSize": f.PageSize})
}

func (s *Server) handleSetNotificationRead(c *gin.Context) {
	var body struct {
		Read *bool `json:"read"`
	}
	_ = c.ShouldBindJSON(&body)
	read := true
	if body.Read != nil {
		read = *body.Read
	}
	n, err := s.notifications.SetRead(c.Request.Context(), c.GetString("userID"), c.Param("id"), read)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) handleDeleteNotification(c *gin.Context) {
	if err := s.notifications.Delete(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	n, err := s.notifications.MarkAllRead(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// handleDeleteNotifications deletes all of the caller's notifications,
// or only the read ones with ?read=true.
func (s *Server) handleDeleteNotifications(c *gin.Context) {
	onlyRead := c.Query("read") == "true"
	n, err := s.notifications.DeleteAll(c.Request.Context(), c.GetString("userID"), onlyRead)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// handleStream serves the live notification channel as server-sent
// events. The connection ends on client disconnect or when the hub
// closes the channel (replacement or inactivity sweep).
func (s *Server) handleStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	frames, unregister := s.hub.Register(c.Request.Context(), c.GetString("userID"))
	defer unregister()

	c.Writer.Flush()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := writeFrame(c.Writer, f); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f notify.Frame) error {
	data := []byte("{}")
	if f.Data != nil {
		var err error
		if data, err = json.Marshal(f.Data); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, data)
	return err
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "ServerError"
	switch err.(type) {
	case usecase.ErrBadRequest:
		status, code = http.StatusBadRequest, "BadRequest"
	case usecase.ErrUnauthorized:
		status, code = http.StatusUnauthorized, "Unauthorized"
	case usecase.ErrNotFound:
		status, code = http.StatusNotFound, "NotFound"
	case usecase.ErrConflict:
		status, code = http.StatusConflict, "Conflict"
	case usecase.ErrUnavailable:
		status, code = http.StatusServiceUnavailable, "Unavailable"
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
}
