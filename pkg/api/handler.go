// Package api exposes content.Service over HTTP with gin.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/content"
	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/pager"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// AuthorHeader names the writer recorded in the audit fields when the body
// does not carry an author.
const AuthorHeader = "X-Author"

// Handler serves the content routes.
type Handler struct {
	svc *content.Service
	log logger.Logger
}

// NewHandler creates the content handler.
func NewHandler(svc *content.Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts every content route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/content", h.scan)
	r.POST("/content/batch", h.getBatch)
	r.GET("/content/:id", h.get)
	r.POST("/content/:id", h.create)
	r.PATCH("/content/:id", h.update)
	r.PUT("/content/:id", h.put)
	r.DELETE("/content/:id", h.delete)

	r.GET("/briefs", h.scanBrief)
	r.GET("/briefs/:type", h.queryByType)
	r.POST("/briefs/:type/batch", h.getBatchBrief)
	r.GET("/briefs/:type/list", h.getList)
	r.GET("/briefs/:type/random", h.getRandomList)
	r.GET("/briefs/:type/ts", h.queryByTypeTS)
	r.GET("/briefs/:type/featured", h.queryByTypeFeatured)
	r.GET("/briefs/:type/items/:iid", h.getBrief)
	r.PUT("/briefs/:type/items/:iid", h.putBrief)
	r.DELETE("/briefs/:type/items/:iid", h.deleteBrief)
}

// options turns the query string into service options. Repeated keys keep
// the first value.
func options(c *gin.Context) content.Options {
	opts := content.Options{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			opts[key] = values[0]
		}
	}
	return opts
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, resp := MapError(c, err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "request_id", resp.RequestID, "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}

func (h *Handler) get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"), options(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Item == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getBrief(c *gin.Context) {
	res, err := h.svc.GetBrief(c.Request.Context(), c.Param("type"), c.Param("iid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Item == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, res)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) getBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.respondList(c)(h.svc.GetBatch(c.Request.Context(), req.IDs))
}

func (h *Handler) getBatchBrief(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.respondList(c)(h.svc.GetBatchBrief(c.Request.Context(), c.Param("type"), req.IDs))
}

func (h *Handler) getList(c *gin.Context) {
	h.respondList(c)(h.svc.GetList(c.Request.Context(), c.Param("type"), options(c)))
}

func (h *Handler) getRandomList(c *gin.Context) {
	h.respondList(c)(h.svc.GetRandomList(c.Request.Context(), c.Param("type"), options(c)))
}

func (h *Handler) queryByTypeTS(c *gin.Context) {
	h.respondList(c)(h.svc.QueryByTypeTS(c.Request.Context(), c.Param("type"), options(c)))
}

func (h *Handler) queryByTypeFeatured(c *gin.Context) {
	h.respondList(c)(h.svc.QueryByTypeFeatured(c.Request.Context(), c.Param("type"), options(c)))
}

func (h *Handler) respondList(c *gin.Context) func(content.ListResult, error) {
	return func(res content.ListResult, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (h *Handler) scan(c *gin.Context) {
	opts := options(c)
	h.stream(c, h.svc.Scan(opts), opts)
}

func (h *Handler) scanBrief(c *gin.Context) {
	opts := options(c)
	h.stream(c, h.svc.ScanBrief(opts), opts)
}

func (h *Handler) queryByType(c *gin.Context) {
	opts := options(c)
	h.stream(c, h.svc.QueryByType(c.Param("type"), opts), opts)
}

// stream writes records as JSON lines until the pager is exhausted, the
// client goes away or max records were sent. An error after the first record
// is reported as a final {"error": ...} line.
func (h *Handler) stream(c *gin.Context, p *pager.Pager, opts content.Options) {
	ctx := c.Request.Context()
	max := opts.PositiveOr("max", 0)
	enc := json.NewEncoder(c.Writer)
	sent := 0

	for rec, err := range p.All(ctx) {
		if err != nil {
			if sent == 0 {
				h.fail(c, err)
				return
			}
			h.log.Error("stream aborted", "request_id", requestid.Get(c), "sent", sent, "error", err)
			_ = enc.Encode(gin.H{"error": err.Error()})
			break
		}
		if sent == 0 {
			c.Header("Content-Type", "application/x-ndjson")
			c.Status(http.StatusOK)
		}
		if err := enc.Encode(rec); err != nil {
			h.log.Warn("stream write failed", "request_id", requestid.Get(c), "error", err)
			return
		}
		c.Writer.Flush()
		sent++
		if max > 0 && sent >= max {
			break
		}
	}
	if sent == 0 && !c.Writer.Written() {
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	}
	stats := p.Stats()
	h.log.Debug("stream completed", "request_id", requestid.Get(c), "sent", sent, "pages", stats.Pages)
}

type writeRequest struct {
	Data   json.RawMessage `json:"data"`
	Author string          `json:"author"`
}

func (h *Handler) bindWrite(c *gin.Context) (any, string, bool) {
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return nil, "", false
	}
	var data any
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			badRequest(c, "invalid data: "+err.Error())
			return nil, "", false
		}
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = c.GetHeader(AuthorHeader)
	}
	return data, author, true
}

func (h *Handler) create(c *gin.Context) {
	data, author, ok := h.bindWrite(c)
	if !ok {
		return
	}
	if err := h.svc.Create(c.Request.Context(), c.Param("id"), data, author); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": c.Param("id"), "status": content.StatusCreated})
}

func (h *Handler) update(c *gin.Context) {
	data, author, ok := h.bindWrite(c)
	if !ok {
		return
	}
	if err := h.svc.Update(c.Request.Context(), c.Param("id"), data, author); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": content.StatusUpdated})
}

func (h *Handler) put(c *gin.Context) {
	data, author, ok := h.bindWrite(c)
	if !ok {
		return
	}
	status, err := h.svc.Put(c.Request.Context(), c.Param("id"), data, author)
	if err != nil {
		h.fail(c, err)
		return
	}
	code := http.StatusOK
	if status == content.StatusCreated {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"id": c.Param("id"), "status": status})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// putBrief stores the JSON object body as a Brief item. Type and IID come
// from the path and override the body.
func (h *Handler) putBrief(c *gin.Context) {
	item := document.Record{}
	if err := c.ShouldBindJSON(&item); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	item[document.AttrType] = c.Param("type")
	item[document.AttrIID] = c.Param("iid")
	for _, attr := range []string{document.AttrTS, document.AttrFeatureDate} {
		if v, ok := item[attr]; ok {
			n, ok := epochMillis(v)
			if !ok {
				badRequest(c, attr+" must be an integer")
				return
			}
			item[attr] = n
		}
	}
	if err := h.svc.PutBrief(c.Request.Context(), item); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func epochMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func (h *Handler) deleteBrief(c *gin.Context) {
	if err := h.svc.DeleteBrief(c.Request.Context(), c.Param("type"), c.Param("iid")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
