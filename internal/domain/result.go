package domain

// FlowResult is a discrete outcome code returned to the client by one of the
// four request flows. The string values are part of the wire contract.
type FlowResult string

const (
	ResultSuccess         FlowResult = "SUCCESS"
	ResultUndefined       FlowResult = "UNDEFINED"
	ResultUnknownError    FlowResult = "UNKNOWN_ERROR"
	ResultWrongXsrf       FlowResult = "WRONG_XSRF"
	ResultWrongOtp        FlowResult = "WRONG_OTP"
	ResultEmailExists     FlowResult = "EMAIL_EXISTS"
	ResultEmailNotAllowed FlowResult = "EMAIL_NOT_ALLOWED"
	ResultEmailNotSent    FlowResult = "EMAIL_NOT_SENT"
	ResultErr401          FlowResult = "ERR_401"
	ResultErr403          FlowResult = "ERR_403"
)

// DispatchResult is the outcome of a single email dispatch workflow run.
type DispatchResult string

const (
	DispatchSuccess         DispatchResult = "SUCCESS"
	DispatchEmailSendFailed DispatchResult = "EMAIL_SEND_FAILED"
	DispatchUserNotFound    DispatchResult = "USER_NOT_FOUND"
	DispatchUnknownError    DispatchResult = "UNKNOWN_ERROR"
)
