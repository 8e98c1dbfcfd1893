// Package check implements validation of configuration structs. Any nested
// field implementing the Validatable interface is validated when the root
// struct is passed to Validate.
package check

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Validatable is implemented by configuration types that can validate
// themselves.
type Validatable interface {
	Validate() []error
}

type validationError struct {
	errs []error
}

func (v validationError) Error() string {
	errStrings := make([]string, 0, len(v.errs))
	for _, err := range v.errs {
		errStrings = append(errStrings, err.Error())
	}
	return fmt.Sprintf("check failed, %d errors found:\n\t%s",
		len(v.errs), strings.Join(errStrings, "\n\t"))
}

// Validate returns an error if any Validatable reachable from the provided
// value has failed. The errors of all failed validators are combined into a
// single returned error.
func Validate(v interface{}) error {
	errs := validate(reflect.ValueOf(v), "root")
	if len(errs) == 0 {
		return nil
	}
	return validationError{errs: errs}
}

func validate(v reflect.Value, path string) []error {
	var errs []error
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		errs = append(errs, validate(v.Elem(), path)...)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			errs = append(errs, validate(v.Index(i), fmt.Sprintf("%s[%d]", path, i))...)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			errs = append(errs, validate(v.Field(i),
				fmt.Sprintf("%s.%s", path, v.Type().Field(i).Name))...)
		}
	}

	if v.Kind() != reflect.Ptr && v.CanInterface() {
		vp := reflect.New(v.Type())
		vp.Elem().Set(v)
		if validatable, ok := vp.Interface().(Validatable); ok {
			for _, err := range validatable.Validate() {
				if err != nil {
					errs = append(errs, errors.Wrapf(err, "error found at %s", path))
				}
			}
		}
	}
	return errs
}

// True returns an error with the provided message if the condition is false.
func True(condition bool, msgAndArgs ...interface{}) error {
	if condition {
		return nil
	}
	return check(false, msgAndArgs, "expected condition to be true")
}

// GreaterThanOrEqualTo returns an error if the first argument is less than the
// second.
func GreaterThanOrEqualTo[T int | int64 | float64](
	actual, expected T, msgAndArgs ...interface{},
) error {
	return check(actual >= expected, msgAndArgs,
		"%v is not greater than or equal to %v", actual, expected)
}

// NotEmpty returns an error if the provided string is empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(len(actual) > 0, msgAndArgs, "string is empty")
}

// Panic panics if the provided error is not nil.
func Panic(err error) {
	if err != nil {
		panic(err.Error())
	}
}

func check(
	condition bool, customMsgAndArgs []interface{}, internalMsg string,
	internalArgs ...interface{},
) error {
	if condition {
		return nil
	}
	if len(customMsgAndArgs) == 0 {
		return errors.Errorf(internalMsg, internalArgs...)
	}
	format, ok := customMsgAndArgs[0].(string)
	if !ok {
		return errors.New("invalid message formatting")
	}
	return errors.Errorf(format, customMsgAndArgs[1:]...)
}
