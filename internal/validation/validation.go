package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"card-engagement-api/internal/models"
	"card-engagement-api/internal/scoring"
)

const (
	maxCardIDLength    = 128
	maxContactLength   = 256
	maxActionLogLength = 500
	maxListLimit       = 200
)

var (
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9 ().-]{5,32}$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func ValidateCreate(req models.CreateEngagementRequest) error {
	if req.ID != "" {
		if err := ValidateUUID(req.ID, "id"); err != nil {
			return err
		}
	}

	if err := ValidateCardID(req.CardID); err != nil {
		return err
	}

	if req.Score < 0 {
		return &ValidationError{
			Field:   "score",
			Message: "must be non-negative",
		}
	}

	if err := validateActionLog(req.ActionLog); err != nil {
		return err
	}

	return validateContact(req.ContactFields)
}

func ValidateUpdate(req models.UpdateEngagementRequest) error {
	if req.Score < 0 {
		return &ValidationError{
			Field:   "score",
			Message: "must be non-negative",
		}
	}

	if req.ActionLogOffset < 0 {
		return &ValidationError{
			Field:   "action_log_offset",
			Message: "must be non-negative",
		}
	}

	if req.ActionLogOffset+len(req.ActionLog) > maxActionLogLength {
		return &ValidationError{
			Field:   "action_log",
			Message: fmt.Sprintf("cannot exceed %d entries", maxActionLogLength),
		}
	}

	if err := validateActionLog(req.ActionLog); err != nil {
		return err
	}

	return validateContact(req.ContactFields)
}

func ValidateCardID(cardID string) error {
	if cardID == "" {
		return &ValidationError{
			Field:   "card_id",
			Message: "is required",
		}
	}

	if len(cardID) > maxCardIDLength {
		return &ValidationError{
			Field:   "card_id",
			Message: fmt.Sprintf("cannot exceed %d characters", maxCardIDLength),
		}
	}

	if SanitizeString(cardID) != cardID {
		return &ValidationError{
			Field:   "card_id",
			Message: "must not contain control characters or surrounding whitespace",
		}
	}

	return nil
}

// ValidateLimit checks a list limit, returning the default for zero.
func ValidateLimit(limit int) (int, error) {
	if limit == 0 {
		return 50, nil
	}
	if limit < 0 || limit > maxListLimit {
		return 0, &ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("must be between 1 and %d", maxListLimit),
		}
	}
	return limit, nil
}

func validateActionLog(log []models.ActionKind) error {
	if len(log) > maxActionLogLength {
		return &ValidationError{
			Field:   "action_log",
			Message: fmt.Sprintf("cannot exceed %d entries", maxActionLogLength),
		}
	}

	for i, kind := range log {
		if !scoring.IsKnown(kind) {
			return &ValidationError{
				Field:   fmt.Sprintf("action_log[%d]", i),
				Message: fmt.Sprintf("unknown action kind: %s", kind),
			}
		}
	}

	return nil
}

func validateContact(c models.ContactFields) error {
	fields := map[string]string{
		"name":    c.Name,
		"email":   c.Email,
		"phone":   c.Phone,
		"company": c.Company,
	}
	for field, value := range fields {
		if len(value) > maxContactLength {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("cannot exceed %d characters", maxContactLength),
			}
		}
	}

	if c.Email != "" && !emailRegex.MatchString(c.Email) {
		return &ValidationError{
			Field:   "email",
			Message: "must be a valid email address",
		}
	}

	if c.Phone != "" && !phoneRegex.MatchString(c.Phone) {
		return &ValidationError{
			Field:   "phone",
			Message: "must be a valid phone number",
		}
	}

	return nil
}

// SanitizeContact strips control characters from every contact field.
func SanitizeContact(c models.ContactFields) models.ContactFields {
	return models.ContactFields{
		Name:    SanitizeString(c.Name),
		Email:   strings.ToLower(SanitizeString(c.Email)),
		Phone:   SanitizeString(c.Phone),
		Company: SanitizeString(c.Company),
	}
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}
