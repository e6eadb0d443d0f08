package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/dgnsrekt/tts-proxy/internal/position"
	"github.com/gin-gonic/gin"
)

func (s *Server) handlePositionGet(kind position.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := s.deps.Positions.Store().Get(kind)
		if err != nil {
			s.logger.Error("Error getting position", "kind", kind, "error", err)
			s.error(c, http.StatusInternalServerError, err.Error())
			return
		}

		payload, err := position.Encode(doc)
		if err != nil {
			s.error(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
	}
}

func (s *Server) handlePositionPut(kind position.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody))
		if err != nil {
			s.error(c, http.StatusBadRequest, msgNoData)
			return
		}

		var doc position.Document
		switch kind {
		case position.KindScroll:
			doc, err = position.ParseScroll(body)
		default:
			doc, err = position.ParsePlayback(body)
		}
		if err != nil {
			if errors.Is(err, position.ErrNoData) {
				s.error(c, http.StatusBadRequest, msgNoData)
				return
			}
			s.error(c, http.StatusBadRequest, err.Error())
			return
		}

		res, err := s.deps.Positions.Update(c.Request.Context(), doc)
		if err != nil {
			s.logger.Error("Error saving position", "kind", kind, "error", err)
			s.error(c, http.StatusInternalServerError, err.Error())
			return
		}

		c.JSON(http.StatusOK, res)
	}
}
