package http

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/abhimm5/chatapp/internal/app/orch"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/abhimm5/chatapp/internal/infra/files"
	"github.com/abhimm5/chatapp/internal/infra/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type uploadHandler struct {
	orch     *orch.Orchestrator
	limiter  ratelimit.Limiter
	maxBytes int64
}

// Upload stores a multipart "avatar" file for the "username" form field.
func (h *uploadHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	if h.limiter != nil {
		ok, err := h.limiter.Allow(ctx, c.GetString(clientTokenKey))
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("rate limiter unavailable")
		} else if !ok {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many uploads, try again in a minute"})
			return
		}
	}

	username := c.PostForm("username")
	fh, err := c.FormFile("avatar")
	if err != nil || username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and avatar are required"})
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	ref, err := h.orch.SetAvatar(ctx, username, filepath.Ext(fh.Filename), f)
	switch {
	case errors.Is(err, files.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("user", username).Msg("avatar upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"profilePic": ref})
	}
}
