package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultLimit is the page size used when none is requested
	DefaultLimit = 20
	// MaxLimit is the largest page size a client may request
	MaxLimit = 100
	// DefaultOffset is the starting offset when none is requested
	DefaultOffset = 0
)

// Params holds parsed pagination parameters
type Params struct {
	Limit  int
	Offset int
}

// Meta describes a paginated result set
type Meta struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ParseParams extracts limit/offset query parameters with defaults and bounds
func ParseParams(c *gin.Context) Params {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset := DefaultOffset
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	return Params{Limit: limit, Offset: offset}
}

// BuildMeta builds pagination metadata for a response
func BuildMeta(limit, offset int, total int64) Meta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return Meta{
		Limit:      limit,
		Offset:     offset,
		Total:      total,
		TotalPages: totalPages,
	}
}

// HasMore reports whether more results exist beyond the current page
func HasMore(offset, limit int, total int64) bool {
	return int64(offset+limit) < total
}
