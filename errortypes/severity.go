package errortypes

// Severity grades how an error affects the screening call that produced it.
type Severity int

const (
	// SeverityUnknown represents an unknown severity level.
	SeverityUnknown Severity = iota

	// SeverityFatal represents an error which prevents screening the
	// transaction at all.
	SeverityFatal

	// SeverityWarning represents an error where invalid or ambiguous data
	// was ignored and screening continued without it.
	SeverityWarning
)

func isFatal(err error) bool {
	c, ok := err.(Coder)
	return !ok || c.Severity() == SeverityFatal
}

// IsWarning reports whether an error carries SeverityWarning.
func IsWarning(err error) bool {
	c, ok := err.(Coder)
	return ok && c.Severity() == SeverityWarning
}

// ContainsFatalError checks if the error list contains a fatal error.
func ContainsFatalError(errors []error) bool {
	for _, err := range errors {
		if isFatal(err) {
			return true
		}
	}
	return false
}

// FatalOnly returns a new error list with only the fatal severity errors.
func FatalOnly(errs []error) []error {
	errsFatal := make([]error, 0, len(errs))
	for _, err := range errs {
		if isFatal(err) {
			errsFatal = append(errsFatal, err)
		}
	}
	return errsFatal
}

// WarningOnly returns a new error list with only the warning severity errors.
func WarningOnly(errs []error) []error {
	errsWarning := make([]error, 0, len(errs))
	for _, err := range errs {
		if IsWarning(err) {
			errsWarning = append(errsWarning, err)
		}
	}
	return errsWarning
}
