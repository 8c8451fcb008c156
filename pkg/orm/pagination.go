package orm

import "gorm.io/gorm"

const MaxPageSize = 200

// ApplyPagination 应用分页到 GORM 查询
// page <= 0 或 limit <= 0 时不分页；limit 上限 MaxPageSize
func ApplyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	if page > 0 && limit > 0 {
		if limit > MaxPageSize {
			limit = MaxPageSize
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
	return db
}

// PageBounds 内存分页用，返回 [lo, hi)
func PageBounds(total, page, limit int) (int, int) {
	if page <= 0 || limit <= 0 {
		return 0, total
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	lo := (page - 1) * limit
	if lo > total {
		lo = total
	}
	hi := lo + limit
	if hi > total {
		hi = total
	}
	return lo, hi
}
