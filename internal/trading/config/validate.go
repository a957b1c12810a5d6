package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/triggerbook/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateCustody, CustodyConfig{})
	v.RegisterStructValidation(validateKafka, KafkaConfig{})
	return v
}

func validateCustody(sl validator.StructLevel) {
	c := sl.Current().Interface().(CustodyConfig)
	if c.Backend == CustodyRedis && len(c.Redis.Addrs) == 0 {
		sl.ReportError(c.Redis.Addrs, "addrs", "Addrs", "required_with_redis", "")
	}
}

func validateKafka(sl validator.StructLevel) {
	k := sl.Current().Interface().(KafkaConfig)
	if !k.Enabled {
		return
	}
	if len(k.Brokers) == 0 {
		sl.ReportError(k.Brokers, "brokers", "Brokers", "required_when_enabled", "")
	}
	if k.Topic == "" {
		sl.ReportError(k.Topic, "topic", "Topic", "required_when_enabled", "")
	}
}

// validateStruct runs the tag validations on s and converts failures into a
// Validation error listing every offending field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verr := errors.Validation.Explain("invalid configuration")
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return verr.Wrap(err)
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		verr = verr.WithField(fe.Tag(), fe.Namespace(), fe.Error())
		names = append(names, fe.Namespace())
	}
	return verr.Explain("invalid configuration: %s", strings.Join(names, ", "))
}
