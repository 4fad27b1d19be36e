package validator

import (
	"github.com/go-playground/validator/v10"

	"labguard/internal/model"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators for the closed enums
	v.RegisterValidation("resource_type", validateResourceType)
	v.RegisterValidation("permission_action", validateAction)
	v.RegisterValidation("target_type", validateTargetType)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validateResourceType(fl validator.FieldLevel) bool {
	return model.ValidResourceType(model.ResourceType(fl.Field().String()))
}

func validateAction(fl validator.FieldLevel) bool {
	return model.ValidAction(model.Action(fl.Field().String()))
}

func validateTargetType(fl validator.FieldLevel) bool {
	switch model.TargetType(fl.Field().String()) {
	case model.TargetTypeUser, model.TargetTypeRole, model.TargetTypeTeam,
		model.TargetTypeOrganization, model.TargetTypePublic:
		return true
	}
	return false
}
