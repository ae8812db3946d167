package products

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/valeevte/PriceTracker/internal/logger"
)

const APIVersion = "1.0"

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log.With("handler", "products")}
}

// RegisterRoutes mounts the read-only query surface on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id/history", h.GetPriceHistory)
	r.GET("/stats", h.GetStats)
	r.GET("/alerts", h.GetAlerts)
	r.GET("/export/csv", h.ExportCSV)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Price Tracker API", "version": APIVersion})
}

func (h *Handler) ListProducts(c *gin.Context) {
	list, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, "ListProducts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": list, "count": len(list)})
}

func (h *Handler) GetPriceHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	f := HistoryFilter{
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	hist, err := h.svc.History(c.Request.Context(), id, f)
	if err != nil {
		h.fail(c, "GetPriceHistory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": hist.ProductID,
		"history":    hist.History,
		"count":      hist.Count,
		"filters": gin.H{
			"start_date": nullable(hist.Filters.StartDate),
			"end_date":   nullable(hist.Filters.EndDate),
		},
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "GetStats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) GetAlerts(c *gin.Context) {
	threshold := DefaultAlertThreshold
	if raw, ok := c.GetQuery("threshold"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		threshold = v
	}
	alerts, err := h.svc.Alerts(c.Request.Context(), threshold)
	if err != nil {
		h.fail(c, "GetAlerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "threshold": threshold, "count": len(alerts)})
}

func (h *Handler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=price_history.csv")
	c.Status(http.StatusOK)

	n, err := h.svc.ExportCSV(c.Request.Context(), c.Writer)
	if err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
			h.fail(c, "ExportCSV", err)
			return
		}
		// headers are already on the wire; the client sees a truncated file
		h.log.Error("ExportCSV: stream aborted", "rows", n, "error", err)
		return
	}
	h.log.Debug("ExportCSV: done", "rows", n)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.log.Error(op+": query failed", "error", err, "storage", IsStorageError(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
