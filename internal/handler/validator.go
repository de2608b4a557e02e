package handler

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/chatrelay/internal/ierr"
)

var roomIdRegex = regexp.MustCompile(`^([\w-]+:?)*\w$`)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return roomIdRegex.MatchString(fl.Field().String())
	})

	return &Validator{
		validate,
	}
}

func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	return nil
}

func (v *Validator) RoomId(roomId string) error {
	if !roomIdRegex.MatchString(roomId) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid roomId"))
	}

	return nil
}
