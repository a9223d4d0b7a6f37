package errortypes

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. a failed
// outbound request): callers translate BadInput into a 400 response.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// AccountRequired should be used when the host is configured to refuse
// screening requests that arrive without an account identifier.
type AccountRequired struct {
	Message string
}

func (err *AccountRequired) Error() string {
	return err.Message
}

func (err *AccountRequired) Code() int {
	return AccountRequiredErrorCode
}

func (err *AccountRequired) Severity() Severity {
	return SeverityFatal
}

// MalformedPolicy should be used when a stored account policy document cannot
// be parsed or fails schema validation. Screening proceeds without the
// account's defaults, so this is a warning.
type MalformedPolicy struct {
	Message string
}

func (err *MalformedPolicy) Error() string {
	return err.Message
}

func (err *MalformedPolicy) Code() int {
	return MalformedPolicyErrorCode
}

func (err *MalformedPolicy) Severity() Severity {
	return SeverityWarning
}

// BadServerResponse should be used when a remote dependency (policy endpoint,
// metadata host) returns a malformed or unexpected response. It should not be
// used for connection errors.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}
