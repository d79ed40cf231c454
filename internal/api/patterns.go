package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"autofill-service/internal/memory"
)

func (s *Server) handlePatternUpload(c *gin.Context) {
	var req PatternUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	id, err := s.memory.Save(c.Request.Context(), req.Pattern, c.Query("email"))
	switch {
	case errors.Is(err, memory.ErrEmailRequired):
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Pattern rejected - email required"})
		return
	case errors.Is(err, memory.ErrEmptyQuestion):
		s.renderError(c, http.StatusBadRequest, err)
		return
	case err != nil:
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, "message": "Pattern uploaded successfully"})
}

func (s *Server) handlePatternSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("query parameter 'q' is required"))
		return
	}
	found, ok, err := s.memory.Search(c.Request.Context(), query, c.Query("email"))
	if err != nil && !errors.Is(err, memory.ErrEmptyQuestion) {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	matches := []memory.Match{}
	if ok {
		matches = append(matches, found)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches})
}

func (s *Server) handlePatternStats(c *gin.Context) {
	stats, err := s.memory.Stats()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (s *Server) handlePatternSync(c *gin.Context) {
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("since must be RFC3339: %w", err))
			return
		}
		since = parsed
	}
	patterns, err := s.memory.GlobalPatterns(since)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "patterns": patterns, "total": len(patterns)})
}

func (s *Server) handleUserPatterns(c *gin.Context) {
	patterns, err := s.memory.UserPatterns(c.Param("email"))
	if err != nil {
		if errors.Is(err, memory.ErrEmailRequired) {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "patterns": patterns, "total": len(patterns)})
}

func (s *Server) handlePatternStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("pattern websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("pattern websocket closed")
			} else {
				logrus.WithError(err).Warn("pattern websocket unexpected close")
			}
			break
		}
	}
}
