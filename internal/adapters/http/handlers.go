package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Roomscribe/internal/app/orch"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	orch *orch.Orchestrator
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrNoTranscript):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrArtifactGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) getRoom(c *gin.Context) {
	room, ok := h.orch.Rooms.GetRoom(domain.RoomID(c.Param("id")))
	if !ok {
		fail(c, domain.ErrRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":   room.Info(),
		"roster": room.Roster(),
	})
}

func (h *handlers) evictRoom(c *gin.Context) {
	if !h.orch.EvictRoom(domain.RoomID(c.Param("id"))) {
		fail(c, domain.ErrRoomNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) transcript(c *gin.Context) {
	entries, err := h.orch.Transcript(domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": c.Param("id"), "entries": entries})
}

// textArtifact serves notes and summary as {"<kind>": text}.
func (h *handlers) textArtifact(kind domain.ArtifactKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := h.orch.Artifact(c.Request.Context(), kind, domain.RoomID(c.Param("id")), c.Query("lang"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{string(kind): string(doc.Body)})
	}
}

func (h *handlers) download(c *gin.Context) {
	kind, err := domain.ParseArtifactKind(c.DefaultQuery("kind", string(domain.ArtifactTranscriptDocx)))
	if err != nil {
		fail(c, err)
		return
	}
	doc, err := h.orch.Artifact(c.Request.Context(), kind, domain.RoomID(c.Param("id")), c.Query("lang"))
	if err != nil {
		fail(c, err)
		return
	}
	if doc.Filename != "" {
		c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// renderPayload forwards a client supplied, possibly edited, meeting payload.
func (h *handlers) renderPayload(c *gin.Context) {
	kind, err := domain.ParseArtifactKind(c.Param("kind"))
	if err != nil {
		fail(c, err)
		return
	}
	var payload domain.MeetingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	doc, err := h.orch.Assembler.RenderPayload(c.Request.Context(), kind, payload)
	if err != nil {
		fail(c, err)
		return
	}
	if kind.IsDocument() {
		if doc.Filename != "" {
			c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
		}
		c.Data(http.StatusOK, doc.ContentType, doc.Body)
		return
	}
	c.JSON(http.StatusOK, gin.H{string(kind): string(doc.Body)})
}
