package dto

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Kind  string `form:"kind" binding:"omitempty,oneof=build test"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
