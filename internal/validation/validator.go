// Package validation checks inbound generation requests before any provider
// work is done.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"nanobanana/internal/domain"
	"nanobanana/internal/imaging"
)

const (
	// MaxPromptLength bounds the prompt in code points, counted on the
	// prompt as received.
	MaxPromptLength = 5000

	tagImage    = "b64image"
	tagMaxItems = "maxitems"
)

// Options configures the reference image checks.
type Options struct {
	// MaxImageBytes bounds each decoded reference image. Zero disables the check.
	MaxImageBytes int64
	// MaxImages bounds the number of reference images. Zero disables the check.
	MaxImages int
	// AllowedFormats lists accepted image.DecodeConfig format names.
	// Empty accepts every decodable format.
	AllowedFormats []string
}

// Validator wraps go-playground/validator with the image rules of this service.
type Validator struct {
	validate *validator.Validate
	opts     Options
	formats  map[string]struct{}
}

// New builds a Validator and registers the custom tags "b64image" and "maxitems".
func New(opts Options) *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		formats:  make(map[string]struct{}, len(opts.AllowedFormats)),
	}
	for _, f := range opts.AllowedFormats {
		v.formats[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.validate.RegisterValidation(tagImage, func(fl validator.FieldLevel) bool {
		_, err := v.CheckImage(fl.Field().String())
		return err == nil
	})
	_ = v.validate.RegisterValidation(tagMaxItems, func(fl validator.FieldLevel) bool {
		if v.opts.MaxImages <= 0 {
			return true
		}
		return fl.Field().Len() <= v.opts.MaxImages
	})
	return v
}

// CheckImage confirms that an encoded entry (with or without a data URL prefix)
// is base64 of a decodable image in an allowed format and within the size bound.
func (v *Validator) CheckImage(encoded string) (imaging.Info, error) {
	data, err := imaging.DecodeBase64(encoded)
	if err != nil {
		return imaging.Info{}, fmt.Errorf("%w: invalid base64 image data", domain.ErrInvalidImage)
	}
	if v.opts.MaxImageBytes > 0 && int64(len(data)) > v.opts.MaxImageBytes {
		return imaging.Info{}, fmt.Errorf("%w: image is %d bytes, limit is %d", domain.ErrInvalidImage, len(data), v.opts.MaxImageBytes)
	}
	info, err := imaging.Inspect(data)
	if err != nil {
		return imaging.Info{}, fmt.Errorf("%w: data is not a decodable image", domain.ErrInvalidImage)
	}
	if len(v.formats) > 0 {
		if _, ok := v.formats[info.Format]; !ok {
			return imaging.Info{}, fmt.Errorf("%w: format %q is not allowed (allowed: %s)", domain.ErrInvalidImage, info.Format, strings.Join(v.allowedList(), ", "))
		}
	}
	return info, nil
}

// Struct validates s and converts failures into *domain.ValidationError with
// one "body -> field: message" entry per problem.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{Details: []string{err.Error()}}
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s: %s", fieldPath(fe), v.message(fe)))
	}
	return &domain.ValidationError{Details: details}
}

func (v *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("String should have at most %s characters", fe.Param())
		}
		return fmt.Sprintf("Value should have at most %s items", fe.Param())
	case "min":
		return fmt.Sprintf("String should have at least %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Input should be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Input should be less than or equal to %s", fe.Param())
	case tagMaxItems:
		return fmt.Sprintf("List should have at most %d items", v.opts.MaxImages)
	case tagImage:
		s, _ := fe.Value().(string)
		if _, err := v.CheckImage(s); err != nil {
			return strings.TrimPrefix(err.Error(), domain.ErrInvalidImage.Error()+": ")
		}
		return "Invalid base64 image data"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func (v *Validator) allowedList() []string {
	out := make([]string, 0, len(v.formats))
	for f := range v.formats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// fieldPath turns "generateRequest.settings.temperature" into
// "body -> settings -> temperature".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return "body -> " + strings.ReplaceAll(ns, ".", " -> ")
}
