// Package types holds payload shapes shared by the HTTP APIs.
package types

import "fmt"

// API areas used as error code prefixes.
const (
	AreaAuth    = "AUTH"
	AreaSystem  = "SYSTEM"
	AreaConfig  = "CONFIG"
	AreaBackup  = "BACKUP"
	AreaRestore = "RESTORE"
	AreaSysEx   = "SYSEX"
	AreaInput   = "INPUT"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorCode builds codes like CONFIG_404.
func ErrorCode(area string, status int) string {
	return fmt.Sprintf("%s_%d", area, status)
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
