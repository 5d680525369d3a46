package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookie = "hanafuda_session"

// Router builds the HTTP surface over the server's use cases.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	api.GET("/games/connect", s.handleConnect)

	games := api.Group("/games/:id")
	games.Use(s.requireSession())
	{
		games.POST("/actions/play-hand-card", s.handlePlayHandCard)
		games.POST("/actions/select-target", s.handleSelectTarget)
		games.POST("/decision", s.handleDecision)
		games.POST("/leave", s.handleLeave)
		games.POST("/confirm-continue", s.handleConfirmContinue)
	}

	return r
}

// requireSession resolves player identity from the session cookie.
// Command endpoints never mint identities; only connect does.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, err := c.Cookie(sessionCookie)
		if err != nil || playerID == "" {
			writeError(c, NewGameError(CodeUnauthorized, "missing session"))
			c.Abort()
			return
		}
		c.Set("playerID", playerID)
		c.Next()
	}
}

func playerID(c *gin.Context) string {
	return c.GetString("playerID")
}

// errorEnvelope is the wire shape of every failure response.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details,omitempty"`
	} `json:"error"`
	Timestamp string `json:"timestamp"`
}

func writeError(c *gin.Context, err error) {
	code := ErrCode(err)
	env := errorEnvelope{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	env.Error.Code = string(code)
	env.Error.Message = errMessage(err, code)
	c.JSON(HTTPStatus(code), env)
}

// errMessage keeps internals opaque on the wire.
func errMessage(err error, code ErrorCode) string {
	if code == CodeInternalError {
		return "internal error"
	}
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}

// handleConnect opens the SSE stream: matchmaking, AI rooms and
// reconnection all come through here.
func (s *Server) handleConnect(c *gin.Context) {
	playerName := c.Query("player_name")
	if playerName == "" {
		writeError(c, NewGameError(CodeValidationError, "player_name is required"))
		return
	}
	gameID := c.Query("game_id")
	roomType := c.Query("room_type")

	pid, err := c.Cookie(sessionCookie)
	if err != nil || pid == "" {
		pid = uuid.New().String()
	}
	c.SetCookie(sessionCookie, pid, int((24 * time.Hour).Seconds()), "/", "", false, true)

	res, err := s.Connect(c.Request.Context(), pid, playerName, gameID, roomType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	initial := NewEvent(EventTypeInitialState, res.GameID, res.PlayerID, res.Initial)
	if err := writeSSE(c, initial, res.PlayerID); err != nil {
		return
	}
	if !res.Stream {
		return
	}

	sub := s.conns.Subscribe(res.GameID, res.PlayerID)
	defer s.conns.Unsubscribe(sub)

	if err := s.PlayerConnected(c.Request.Context(), res.GameID, res.PlayerID); err != nil {
		s.log.Errorf("Failed to attach player %s to game %s: %v", res.PlayerID, res.GameID, err)
		return
	}

	heartbeat := time.NewTicker(s.cfg.SSEHeartbeatInterval)
	defer heartbeat.Stop()
	defer s.PlayerDisconnected(context.Background(), res.GameID, res.PlayerID)

	for {
		select {
		case event, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := writeSSE(c, event, res.PlayerID); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(c.Writer, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeSSE(c *gin.Context, event *Event, playerID string) error {
	data, err := event.WireJSON(playerID)
	if err != nil {
		return err
	}
	err = sse.Encode(c.Writer, sse.Event{
		Event: string(event.Type),
		Data:  string(data),
	})
	if err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

type playCardRequest struct {
	CardID string `json:"cardId" binding:"required"`
}

func (s *Server) handlePlayHandCard(c *gin.Context) {
	var req playCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapGameError(CodeValidationError, "cardId is required", err))
		return
	}
	if err := s.PlayHandCard(c.Request.Context(), c.Param("id"), playerID(c), req.CardID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type selectTargetRequest struct {
	SourceCardID string `json:"sourceCardId" binding:"required"`
	TargetCardID string `json:"targetCardId" binding:"required"`
}

func (s *Server) handleSelectTarget(c *gin.Context) {
	var req selectTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapGameError(CodeValidationError, "sourceCardId and targetCardId are required", err))
		return
	}
	if err := s.SelectTarget(c.Request.Context(), c.Param("id"), playerID(c), req.SourceCardID, req.TargetCardID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type decisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (s *Server) handleDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapGameError(CodeValidationError, "decision is required", err))
		return
	}
	if err := s.MakeDecision(c.Request.Context(), c.Param("id"), playerID(c), req.Decision); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLeave(c *gin.Context) {
	// Body intentionally ignored; leave takes no arguments.
	io.Copy(io.Discard, c.Request.Body)
	if err := s.LeaveGame(c.Request.Context(), c.Param("id"), playerID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfirmContinue(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapGameError(CodeValidationError, "decision is required", err))
		return
	}
	if err := s.ConfirmContinue(c.Request.Context(), c.Param("id"), playerID(c), ContinueChoice(req.Decision)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
