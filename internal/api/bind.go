package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// NoParams is the params type of methods that take none. It accepts an
// empty object or an empty array.
type NoParams struct{}

func (*NoParams) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "{}", "[]", "null":
		return nil
	}
	return errors.New("method takes no parameters")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Bind adapts a typed method to a HandlerFunc. Params are decoded into P
// and checked against its validate tags before fn runs.
func Bind[P any, R any](fn func(ctx context.Context, params P) (R, error)) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		if err := validateParams(params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Wrap(CodeParametersInvalid, err, fmt.Sprintf(`Invalid parameter "/%s": unexpected %s.`, strings.ReplaceAll(typeErr.Field, ".", "/"), typeErr.Value))
		}
		if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return Wrap(CodeParametersInvalid, err, fmt.Sprintf(`Invalid parameter "/": unexpected parameter %s.`, field))
		}
		return Wrap(CodeParametersInvalid, err, "Invalid parameters.")
	}
	return nil
}

func validateParams(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// not a struct, nothing to check
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return Wrap(CodeParametersInvalid, err, fmt.Sprintf(`Invalid parameter "%s": %s.`, fieldPath(fe), describe(fe)))
	}
	return Wrap(CodeParametersInvalid, err, "Invalid parameters.")
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.NewReplacer(".", "/", "[", "/", "]", "").Replace(ns)
	return "/" + ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "cannot be empty"
	case "oneof":
		return "value must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		return "value must be no less than " + fe.Param()
	case "max", "lte":
		return "value is too long or too large, limit is " + fe.Param()
	case "excludesall":
		return "invalid characters"
	case "hexadecimal", "len":
		return "invalid identifier"
	default:
		return fmt.Sprintf("failed on %q", fe.Tag())
	}
}
