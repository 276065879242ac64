package api

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"cvrpsim/internal/cvrp"
)

var validate = validator.New()

type randomProblemRequest struct {
	N        int     `json:"n" validate:"gte=1,lte=5000"`
	Capacity float64 `json:"capacity" validate:"gt=0"`
	Seed     int64   `json:"seed"`
}

// validateRequest checks the struct tags of a request body.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", cvrp.ErrFormat, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", cvrp.ErrFormat, strings.Join(msgs, "; "))
}
