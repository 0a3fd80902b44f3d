package contentclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

// Patient search modes.
const (
	SearchByText = "text"
	SearchByID   = "id"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,30}$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// ValidationError describes registration input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RegisterPatient creates a patient account on behalf of a nurse.
func (c *Client) RegisterPatient(ctx context.Context, reg domain.PatientRegistration) error {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Username = strings.TrimSpace(reg.Username)
	if err := validateRegistration(reg); err != nil {
		return err
	}

	err := c.caller.SendJSON(ctx, http.MethodPost, "/users/patient/register/", reg, nil)
	var failure *domain.RequestFailure
	if errors.As(err, &failure) && failure.Status == http.StatusTooManyRequests {
		return domain.ErrTooManyRequests
	}
	return err
}

// SearchPatients looks patients up by name/email text or by numeric id.
func (c *Client) SearchPatients(ctx context.Context, searchBy, query string) ([]domain.PatientSummary, error) {
	query = strings.TrimSpace(query)
	switch searchBy {
	case SearchByText:
	case SearchByID:
		if !digitsPattern.MatchString(query) {
			return nil, &ValidationError{Field: "query", Message: "id search accepts digits only"}
		}
	default:
		return nil, &ValidationError{Field: "searchBy", Message: fmt.Sprintf("unknown search mode %q", searchBy)}
	}

	params := url.Values{}
	params.Set("searchBy", searchBy)
	params.Set("query", query)

	var patients []domain.PatientSummary
	if err := c.caller.SendJSON(ctx, http.MethodGet, "/users/patients-list/?"+params.Encode(), nil, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// PatientGraph loads one patient's weekly activity.
func (c *Client) PatientGraph(ctx context.Context, patientID int) (*domain.PatientGraph, error) {
	var graph domain.PatientGraph
	if err := c.caller.SendJSON(ctx, http.MethodGet, fmt.Sprintf("/users/patient-graph/%d/", patientID), nil, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

func validateRegistration(reg domain.PatientRegistration) error {
	if _, err := mail.ParseAddress(reg.Email); err != nil || !strings.Contains(reg.Email, ".") {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if !usernamePattern.MatchString(reg.Username) {
		return &ValidationError{Field: "username", Message: "must be 3 to 30 letters or digits"}
	}
	if err := checkPasswordStrength(reg.Password); err != nil {
		return err
	}
	if reg.Password != reg.Password2 {
		return &ValidationError{Field: "password2", Message: "passwords do not match"}
	}
	return nil
}

func checkPasswordStrength(password string) error {
	if len(password) < 8 {
		return &ValidationError{Field: "password", Message: "must be at least 8 characters long"}
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		return &ValidationError{Field: "password", Message: "must contain an uppercase letter"}
	case !digit:
		return &ValidationError{Field: "password", Message: "must contain a number"}
	case !special:
		return &ValidationError{Field: "password", Message: "must contain a special character"}
	}
	return nil
}
