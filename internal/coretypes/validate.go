package coretypes

import "github.com/go-playground/validator/v10"

// sharedValidator is reused by every row-shaped type's Validate method —
// one validator.New() per process, not one per call.
var sharedValidator = validator.New()
