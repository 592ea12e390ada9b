package evaluation

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// File is one uploaded submission.
type File struct {
	Name    string
	Content []byte
}

// Empty reports whether the file carries no content.
func (f File) Empty() bool {
	return len(f.Content) == 0
}

// Request is a validated evaluation request.
type Request struct {
	CorrectPrompt string
	SubmissionA   File
	SubmissionB   File
}

type requestFields struct {
	CorrectPrompt string `validate:"required"`
	SubmissionA   []byte `validate:"required,min=1"`
	SubmissionB   []byte `validate:"required,min=1"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

var wireNames = map[string]string{
	"CorrectPrompt": FieldCorrectPrompt,
	"SubmissionA":   FieldSubmissionA,
	"SubmissionB":   FieldSubmissionB,
}

// NewRequest validates the three user inputs and assembles a Request.
// A whitespace-only prompt or a file without content counts as missing.
func NewRequest(prompt string, submissionA, submissionB File) (Request, error) {
	fields := requestFields{
		CorrectPrompt: strings.TrimSpace(prompt),
		SubmissionA:   submissionA.Content,
		SubmissionB:   submissionB.Content,
	}

	if err := requestValidator().Struct(fields); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return Request{}, err
		}
		missing := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			missing = append(missing, wireNames[fieldErr.StructField()])
		}
		return Request{}, &ValidationError{Fields: missing}
	}

	return Request{
		CorrectPrompt: prompt,
		SubmissionA:   submissionA,
		SubmissionB:   submissionB,
	}, nil
}
