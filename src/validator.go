package main

import (
	"reflect"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"gopkg.in/go-playground/validator.v9"
)

var botTokenRx = regexp.MustCompile(`^\d+:[\w-]+$`)

type defaultValidator struct {
	once     sync.Once
	validate *validator.Validate
}

var _ binding.StructValidator = &defaultValidator{}

func (v *defaultValidator) ValidateStruct(obj interface{}) error {
	if kindOfData(obj) == reflect.Struct {
		v.lazyinit()
		if err := v.validate.Struct(obj); err != nil {
			return error(err)
		}
	}

	return nil
}

func (v *defaultValidator) Engine() interface{} {
	v.lazyinit()
	return v.validate
}

func (v *defaultValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New()
		v.validate.SetTagName("binding")
		v.validate.RegisterValidation("telegramtoken", validateTelegramToken)
		v.validate.RegisterValidation("botport", validateBotPort)
	})
}

func kindOfData(data interface{}) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}

func setValidation() {
	binding.Validator = new(defaultValidator)
}

func validateTelegramToken(field validator.FieldLevel) bool {
	return botTokenRx.MatchString(field.Field().String())
}

func validateBotPort(field validator.FieldLevel) bool {
	switch field.Field().String() {
	case portWeb, portPersonal:
		return true
	}

	return false
}
