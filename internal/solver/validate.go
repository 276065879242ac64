package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/constraints"

	"cvrpsim/internal/cvrp"
)

var validate = validator.New()

// ValidateStruct checks the `validate` tags of cfg. Violations are reported
// as one error wrapping cvrp.ErrConfig that names every offending field.
func ValidateStruct(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", cvrp.ErrConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s%s (got %v)", fe.Field(), fe.Tag(), paramSuffix(fe.Param()), fe.Value()))
	}
	return fmt.Errorf("%w: %s", cvrp.ErrConfig, strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
