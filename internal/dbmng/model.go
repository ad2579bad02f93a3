// Package dbmng はマスタ管理（備品の分類）
package dbmng

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
	Code string `json:"code" binding:"required"`
}

type UpdateCategoryRequest struct {
	Name       string `json:"name" binding:"required"`
	Code       string `json:"code" binding:"required"`
	IsDisabled bool   `json:"is_disabled"`
}

// Category: code は管理番号の接頭辞（COM-001 の COM）
type Category struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	IsDisabled bool   `json:"is_disabled"`
}
