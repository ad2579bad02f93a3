package products

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"CAMPUS-backend/internal/asset_mgmt/inventory"
)

// RegisterValidators は gin の binding に独自タグを登録する
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return registerOn(v)
}

func registerOn(v *validator.Validate) error {
	if err := v.RegisterValidation("stockmode", func(fl validator.FieldLevel) bool {
		m := StockMode(fl.Field().String())
		return m == StockSet || m == StockAdd
	}); err != nil {
		return err
	}
	return v.RegisterValidation("productkind", func(fl validator.FieldLevel) bool {
		return inventory.Kind(fl.Field().String()).Valid()
	})
}
