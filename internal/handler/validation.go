package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"celulas/membership/internal/model"
)

var registerValidatorsOnce sync.Once

// RegisterValidators installs the custom binding tags used by request structs.
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("invitation_role", func(fl validator.FieldLevel) bool {
			return model.Role(fl.Field().String()).Invitable()
		})
	})
}
