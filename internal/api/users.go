package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autofill-service/internal/profile"
	"autofill-service/internal/store"
)

func (s *Server) handleSaveUserData(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	email, _ := body["email"].(string)
	email = store.NormalizeEmail(email)
	if email == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if err := s.db.SaveProfile(email, profile.Unwrap(body)); err != nil {
		s.renderError(c, http.StatusInternalServerError, fmt.Errorf("failed to save profile: %w", err))
		return
	}
	logrus.WithField("email", email).Info("profile saved")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Profile saved"})
}

func (s *Server) handleGetUserData(c *gin.Context) {
	s.renderProfile(c, c.Param("email"))
}

// handleRestoreUser serves the existing-user flow of the onboarding screen.
func (s *Server) handleRestoreUser(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	email := store.NormalizeEmail(req.Email)
	if !strings.Contains(email, "@") {
		s.renderError(c, http.StatusBadRequest, errors.New("a valid email is required"))
		return
	}
	s.renderProfile(c, email)
}

func (s *Server) renderProfile(c *gin.Context, email string) {
	row, err := s.db.GetProfile(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, errors.New("profile not found"))
			return
		}
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile.Unwrap(row.Profile())})
}

func (s *Server) handleStatsSummary(c *gin.Context) {
	dayAgo := time.Now().Add(-24 * time.Hour)
	var (
		resp SummaryResponse
		err  error
	)
	if resp.Users.Total, err = s.db.CountProfiles(time.Time{}); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if resp.Users.Recent24h, err = s.db.CountProfiles(dayAgo); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if resp.Feedback.Total, err = s.db.CountFeedback(time.Time{}); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if resp.Feedback.Recent24h, err = s.db.CountFeedback(dayAgo); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTrackFeedback(c *gin.Context) {
	email := store.NormalizeEmail(c.Query("email"))
	if email == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("query parameter 'email' is required"))
		return
	}
	if _, err := s.db.CreateFeedback(email, c.DefaultQuery("type", "click")); err != nil {
		logrus.WithError(err).WithField("email", email).Warn("track feedback")
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
