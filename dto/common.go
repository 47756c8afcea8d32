package dto

type ValidationError struct {
	Field   string `json:"field" example:"identifier"`
	Message string `json:"message" example:"identifier must start with ip: or user:"`
}

type ValidationErrorResponse struct {
	Code    int               `json:"code" example:"400"`
	Message string            `json:"message" example:"Validation failed"`
	Errors  []ValidationError `json:"errors"`
}

type PaginationRequest struct {
	Page  int `json:"page" query:"page" validate:"omitempty,min=1" example:"1"`
	Limit int `json:"limit" query:"limit" validate:"omitempty,min=1,max=100" example:"20"`
}

func (p PaginationRequest) Normalize() PaginationRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	return p
}

type PaginationResponse struct {
	Page       int   `json:"page" example:"1"`
	Limit      int   `json:"limit" example:"20"`
	Total      int64 `json:"total" example:"100"`
	TotalPages int   `json:"total_pages" example:"5"`
	HasNext    bool  `json:"has_next" example:"true"`
	HasPrev    bool  `json:"has_prev" example:"false"`
}

func NewPaginationResponse(page, limit int, total int64) PaginationResponse {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return PaginationResponse{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
