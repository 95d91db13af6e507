package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"interview-room/aggregate"
	"interview-room/auth"
	"interview-room/dto"
	"interview-room/entities"
	"interview-room/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type RoomService interface {
	View() service.RoomView
	Subscribe() (<-chan service.RoomView, func())
	Start(ctx context.Context, resumeID string) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Retake(ctx context.Context) error
	SubmitAnswer(ctx context.Context) error
	Advance(ctx context.Context) error
	Complete(ctx context.Context) error
	Refresh(ctx context.Context) error
	Leave(ctx context.Context) error
	AnswerProcessed(ctx context.Context, questionID string) (bool, error)
	MySessions(ctx context.Context) ([]aggregate.SessionView, error)
}

type RosterService interface {
	Refresh(ctx context.Context) error
	View(query string, field aggregate.SortField, order aggregate.SortOrder) service.RosterView
	Session(ctx context.Context, sessionID string) (aggregate.SessionView, error)
	Delete(ctx context.Context, sessionID string) error
	AnswerMedia(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error)
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (auth.Credential, error)
	Logout(ctx context.Context) error
}

type Handlers struct {
	Room   RoomService
	Roster RosterService
	Auth   AuthService
}

// NewRouter exposes the room and the roster over HTTP. Every request
// carries the logger of ctx.
func NewRouter(ctx context.Context, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), withLogger(*zerolog.Ctx(ctx)))
	addHealth(r)

	if h.Auth != nil {
		a := r.Group("/auth")
		a.POST("/login", h.login)
		a.POST("/logout", h.logout)
	}

	room := r.Group("/room")
	room.GET("", h.roomView)
	room.GET("/ws", h.roomStream)
	room.POST("/start", h.startRoom)
	room.POST("/recording/start", h.command(h.Room.StartRecording))
	room.POST("/recording/stop", h.command(h.Room.StopRecording))
	room.POST("/recording/retake", h.command(h.Room.Retake))
	room.POST("/answer/submit", h.command(h.Room.SubmitAnswer))
	room.POST("/advance", h.command(h.Room.Advance))
	room.POST("/complete", h.command(h.Room.Complete))
	room.POST("/refresh", h.command(h.Room.Refresh))
	room.DELETE("", h.command(h.Room.Leave))
	room.GET("/answers/:question_id/status", h.answerStatus)
	room.GET("/sessions", h.mySessions)

	admin := r.Group("/admin")
	admin.GET("/roster", h.roster)
	admin.POST("/roster/refresh", h.refreshRoster)
	admin.GET("/sessions/:session_id", h.session)
	admin.DELETE("/sessions/:session_id", h.deleteSession)
	admin.GET("/sessions/:session_id/answers/:question_id/media", h.answerMedia)

	return r
}

func withLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logger.With().Str("method", c.Request.Method).Str("path", c.FullPath()).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entities.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrRoomClosed):
		return http.StatusGone
	case errors.Is(err, entities.ErrInvalidTransition),
		errors.Is(err, entities.ErrSessionAlreadyComplete),
		errors.Is(err, entities.ErrNoLiveStream):
		return http.StatusConflict
	case errors.Is(err, entities.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrEmptyRecording):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, entities.ErrTimeout), errors.Is(err, entities.ErrPollingAbandoned):
		return http.StatusGatewayTimeout
	case errors.Is(err, entities.ErrNetwork), errors.Is(err, entities.ErrServerRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, dto.ErrorBody{Error: err.Error(), Message: entities.Describe(err)})
}

func (h Handlers) command(fn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			abort(c, statusOf(err), err)
			return
		}
		c.JSON(http.StatusOK, h.Room.View())
	}
}

func (h Handlers) roomView(c *gin.Context) {
	c.JSON(http.StatusOK, h.Room.View())
}

func (h Handlers) startRoom(c *gin.Context) {
	var req dto.StartRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}
	if err := h.Room.Start(c.Request.Context(), req.SessionID); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, h.Room.View())
}

func (h Handlers) answerStatus(c *gin.Context) {
	questionID := c.Param("question_id")
	processed, err := h.Room.AnswerProcessed(c.Request.Context(), questionID)
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, dto.AnswerStatusResponse{Processed: processed, QuestionID: questionID})
}

func (h Handlers) mySessions(c *gin.Context) {
	views, err := h.Room.MySessions(c.Request.Context())
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// roomStream pushes every room view to a websocket client until either side
// goes away.
func (h Handlers) roomStream(c *gin.Context) {
	logger := zerolog.Ctx(c.Request.Context())
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	views, unsubscribe := h.Room.Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("websocket closed")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case v, ok := <-views:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				logger.Debug().Err(err).Msg("failed to write room view")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h Handlers) roster(c *gin.Context) {
	field, err := aggregate.ParseSortField(c.Query("sort"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	order, err := aggregate.ParseSortOrder(c.Query("order"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	view := h.Roster.View(c.Query("q"), field, order)
	if view.RefreshedAt.IsZero() {
		if err := h.Roster.Refresh(c.Request.Context()); err != nil {
			abort(c, statusOf(err), err)
			return
		}
		view = h.Roster.View(c.Query("q"), field, order)
	}
	c.JSON(http.StatusOK, view)
}

func (h Handlers) refreshRoster(c *gin.Context) {
	if err := h.Roster.Refresh(c.Request.Context()); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, h.Roster.View("", aggregate.SortByStartedAt, aggregate.Ascending))
}

func (h Handlers) session(c *gin.Context) {
	view, err := h.Roster.Session(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h Handlers) deleteSession(c *gin.Context) {
	if err := h.Roster.Delete(c.Request.Context(), c.Param("session_id")); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) answerMedia(c *gin.Context) {
	media, err := h.Roster.AnswerMedia(c.Request.Context(), c.Param("session_id"), c.Param("question_id"))
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	defer media.Body.Close()
	c.DataFromReader(http.StatusOK, media.Size, media.ContentType, media.Body, nil)
}

func (h Handlers) login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	cred, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    cred.UserID,
		"role":       cred.Role,
		"full_name":  cred.FullName,
		"expires_at": cred.ExpiresAt,
	})
}

func (h Handlers) logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context()); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}
