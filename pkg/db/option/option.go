package option

import (
	"strings"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm statement before execution.
type Option interface {
	Apply(*gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination builds a cursor pagination option for created_at/id keyed listings.
func ApplyPagination(page pagination.Pagination) Option {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}

	if token := strings.TrimSpace(o.page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil {
			if ts, parseErr := time.Parse(time.RFC3339, cursor.CreatedAt); parseErr == nil {
				stmt = stmt.Where("(created_at, id) < (?, ?)", ts, cursor.ID)
			}
		}
	}

	// One extra row signals has_more to the caller.
	return stmt.Limit(size + 1)
}
