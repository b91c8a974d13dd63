package betting

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/betarena/market-engine/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Categories accepted for contracts.
var Categories = []string{"general", "sports", "politics", "entertainment", "finance", "weather", "technology"}

const defaultCategory = "general"

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=50"`
}

func (r *CreateUserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	return validationError(validate.Struct(r))
}

// CreateContractRequest is the JSON body for POST /contracts.
type CreateContractRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=1000"`
	Category    string     `json:"category" validate:"omitempty,oneof=general sports politics entertainment finance weather technology"`
	CreatorID   string     `json:"creator_id"`
	ClosingDate *time.Time `json:"closing_date"` // advisory only
}

func (r *CreateContractRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if err := validationError(validate.Struct(r)); err != nil {
		return err
	}
	if r.Category == "" {
		r.Category = defaultCategory
	}
	return nil
}

// PlaceBetRequest is the JSON body for POST /contracts/{contractID}/bets.
// Amount is in whole coins; the configured bet range is checked by the
// service.
type PlaceBetRequest struct {
	UserID   string     `json:"user_id" validate:"required"`
	Position model.Side `json:"position" validate:"required,oneof=yes no"`
	Amount   int64      `json:"amount" validate:"required,gt=0"`
}

func (r *PlaceBetRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// ResolveRequest is the JSON body for POST /contracts/{contractID}/resolve.
type ResolveRequest struct {
	Resolution model.Side `json:"resolution" validate:"required,oneof=yes no"`
}

func (r *ResolveRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// validationError converts validator output into an ErrValidation with
// one message per failed field.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
