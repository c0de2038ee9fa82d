package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	appErrors "github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
	appValidator "github.com/civicalert/civicalert/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When binding or validation fails, a problem document is written and false is returned.
func bindAndValidate[T any](c *gin.Context, writer *response.Writer, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		if errors.Is(err, io.EOF) {
			writer.Error(c, appErrors.NewBadRequest("request body is required"))
			return false
		}
		writer.Error(c, appErrors.NewBadRequest("invalid JSON payload").WithInternal(err))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		writer.Error(c, validationProblem(err))
		return false
	}

	return true
}

func validationProblem(err error) error {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}

	fields := make([]appErrors.FieldError, 0, len(ve))
	for _, failure := range ve {
		fields = append(fields, appErrors.FieldError{
			Field:         failure.Field,
			Message:       failure.Message(),
			Kind:          failure.Tag,
			RejectedInput: failure.Value,
		})
	}
	return appErrors.NewValidation(fields...)
}
