package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"travel-inquiry-agent/internal/model"
)

// GetThreads returns conversation threads with pagination
func (h *Handlers) GetThreads(c *gin.Context) {
	page, limit, offset := pagination(c)

	var threads []model.ConversationThread
	var total int64

	if err := h.db.Model(&model.ConversationThread{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count threads",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	if err := h.db.Order("last_updated DESC").Offset(offset).Limit(limit).Find(&threads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch threads",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"threads": threads,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetThread returns one thread with its ordered messages
func (h *Handlers) GetThread(c *gin.Context) {
	key := c.Param("key")

	var thread model.ConversationThread
	if err := h.db.Where("thread_key = ?", key).First(&thread).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Error:   "not_found",
				Message: "Thread not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch thread",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var messages []model.ThreadMessage
	if err := h.db.Where("thread_key = ?", key).Order("received_at ASC, id ASC").Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch thread messages",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thread":   thread,
		"messages": messages,
	})
}

// GetInquiries returns extracted inquiries, optionally filtered by thread key
func (h *Handlers) GetInquiries(c *gin.Context) {
	page, limit, offset := pagination(c)

	query := h.db.Model(&model.TravelInquiry{})
	if key := c.Query("thread_key"); key != "" {
		query = query.Where("thread_key = ?", key)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count inquiries",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var inquiries []model.TravelInquiry
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&inquiries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch inquiries",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"inquiries": inquiries,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetInquiry returns a specific inquiry
func (h *Handlers) GetInquiry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid inquiry ID",
			Code:    http.StatusBadRequest,
		})
		return
	}

	var inquiry model.TravelInquiry
	if err := h.db.First(&inquiry, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Error:   "not_found",
				Message: "Inquiry not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch inquiry",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, inquiry)
}

// GetQuotes returns quote documents, optionally filtered by thread key
func (h *Handlers) GetQuotes(c *gin.Context) {
	page, limit, offset := pagination(c)

	query := h.db.Model(&model.QuoteDocument{})
	if key := c.Query("thread_key"); key != "" {
		query = query.Where("thread_key = ?", key)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count quotes",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var quotes []model.QuoteDocument
	if err := query.Preload("Inquiry").Order("created_at DESC").Offset(offset).Limit(limit).Find(&quotes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch quotes",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quotes": quotes,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetQuote returns a quote document by its handle
func (h *Handlers) GetQuote(c *gin.Context) {
	handle := c.Param("handle")

	var quote model.QuoteDocument
	if err := h.db.Preload("Inquiry").Where("handle = ?", handle).First(&quote).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Error:   "not_found",
				Message: "Quote not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch quote",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, quote)
}

func pagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	return page, limit, (page - 1) * limit
}
