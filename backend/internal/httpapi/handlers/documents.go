package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pieceServer/backend/internal/collab"
	"pieceServer/backend/internal/editop"
	"pieceServer/backend/internal/piecetable"
	"pieceServer/backend/internal/store"
)

type DocumentHandler struct {
	svc collab.Service
}

func NewDocumentHandler(svc collab.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type createReq struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content"`
}

type editReq struct {
	BaseRevision uint64       `json:"baseRevision"`
	ClientID     string       `json:"clientId" binding:"required"`
	ClientSeq    uint64       `json:"clientSeq" binding:"required"`
	Ops          editop.Batch `json:"ops" binding:"required"`
}

// Register 挂载 /collab/documents 下的路由
func (h *DocumentHandler) Register(g *gin.RouterGroup) {
	g.POST("", h.Create())
	g.GET("/id", h.GetID())
	g.POST("/:docId/open", h.Open())
	g.DELETE("/:docId", h.Close())
	g.POST("/:docId/edits", h.Edit())
	g.GET("/:docId/ops", h.OpsSince())
	g.GET("/:docId/render", h.Render())
	g.GET("/:docId/content", h.Content())
	g.POST("/:docId/snapshot", h.Snapshot())
}

// statusOf：把业务错误映射成 HTTP 状态码和错误码
func statusOf(err error) (int, string) {
	switch {
	// ErrReleased：请求和 CloseDocument 并发，文档已经被关闭
	case errors.Is(err, collab.ErrDocumentNotOpen), errors.Is(err, piecetable.ErrReleased):
		return http.StatusNotFound, "DOCUMENT_NOT_OPEN"
	case errors.Is(err, store.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, store.ErrDocumentExists):
		return http.StatusConflict, "DOCUMENT_EXISTS"
	case errors.Is(err, collab.ErrRevisionConflict):
		return http.StatusConflict, "REVISION_CONFLICT"
	case errors.Is(err, collab.ErrDuplicateOrOutOfOrder):
		return http.StatusConflict, "DUPLICATE_OR_OUT_OF_ORDER"
	case errors.Is(err, editop.ErrInvalidOp):
		return http.StatusBadRequest, "INVALID_OP"
	case errors.Is(err, piecetable.ErrOutOfCapacity):
		return http.StatusInsufficientStorage, "OUT_OF_CAPACITY"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func abortWith(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": err.Error()})
}

func (h *DocumentHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
			return
		}
		ownerID := c.GetUint64("userId")
		docID, err := h.svc.CreateDocument(c.Request.Context(), ownerID, req.Title, []byte(req.Content))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID, "ownerId": ownerID, "title": req.Title})
	}
}

func (h *DocumentHandler) GetID() gin.HandlerFunc {
	return func(c *gin.Context) {
		title := c.Query("title")
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "title required"})
			return
		}
		docID, err := h.svc.GetDocumentID(c.Request.Context(), title)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID})
	}
}

func (h *DocumentHandler) Open() gin.HandlerFunc {
	return func(c *gin.Context) {
		rev, err := h.svc.OpenDocument(c.Request.Context(), c.Param("docId"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": c.Param("docId"), "revision": rev})
	}
}

func (h *DocumentHandler) Close() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.svc.CloseDocument(c.Request.Context(), c.Param("docId")); err != nil {
			abortWith(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *DocumentHandler) Edit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req editReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
			return
		}
		op, err := h.svc.Submit(c.Request.Context(), c.Param("docId"), c.GetUint64("userId"),
			req.BaseRevision, req.ClientID, req.ClientSeq, req.Ops)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"operationId": op.OperationID,
			"revision":    op.Revision,
			"cursor":      op.Result.Cursor,
			"length":      op.Result.Length,
			"clamped":     op.Result.Clamped,
		})
	}
}

func (h *DocumentHandler) OpsSince() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "invalid from"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "invalid limit"})
			return
		}
		ops, err := h.svc.OpsSince(c.Request.Context(), c.Param("docId"), from, limit)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ops": ops})
	}
}

func (h *DocumentHandler) Render() gin.HandlerFunc {
	return func(c *gin.Context) {
		ri, rev, err := h.svc.Render(c.Request.Context(), c.Param("docId"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, collab.NewRenderView(ri, rev))
	}
}

func (h *DocumentHandler) Content() gin.HandlerFunc {
	return func(c *gin.Context) {
		content, rev, err := h.svc.LoadDocumentContent(c.Request.Context(), c.Param("docId"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"content": content, "revision": rev})
	}
}

func (h *DocumentHandler) Snapshot() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.svc.SaveSnapshot(c.Request.Context(), c.Param("docId")); err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": c.Param("docId"), "saved": true})
	}
}
