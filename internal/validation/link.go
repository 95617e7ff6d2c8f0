package validation

import (
	"strings"

	"github.com/portview/portfolio-backend/internal/api/request"
)

// ValidateExchangeToken validates a token exchange request.
//
// Required fields:
//   - publicToken: Must be present and non-blank
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateExchangeToken(req request.ExchangeTokenRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.PublicToken) == "" {
		errors["publicToken"] = "publicToken is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}

	return nil
}

// ValidateSandboxLink validates a sandbox link request. Both fields are
// optional but an institution ID, when given, must look like one.
//
// Optional fields (validated if provided):
//   - institutionId: Must start with the "ins_" aggregator prefix
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateSandboxLink(req request.SandboxLinkRequest) error {
	errors := make(map[string]string)

	if req.InstitutionID != "" && !strings.HasPrefix(req.InstitutionID, "ins_") {
		errors["institutionId"] = "institutionId must start with ins_"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}

	return nil
}
