// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import "strconv"

// Status is a reply status line.
type Status struct {
	Code int
	Text string
}

var (
	StatusOK                  = Status{Code: 200, Text: "OK"}
	StatusForbidden           = Status{Code: 403, Text: "Forbidden"}
	StatusNotFound            = Status{Code: 404, Text: "Not Found"}
	StatusInternalServerError = Status{Code: 500, Text: "Internal Server Error"}
)

var statusByCode = map[int]Status{
	StatusOK.Code:                  StatusOK,
	StatusForbidden.Code:           StatusForbidden,
	StatusNotFound.Code:            StatusNotFound,
	StatusInternalServerError.Code: StatusInternalServerError,
}

// StatusForCode returns the known status with the given code.
func StatusForCode(code int) (Status, bool) {
	status, ok := statusByCode[code]
	return status, ok
}

// String renders the status line without terminator, e.g. "404 Not Found".
func (s Status) String() string {
	return strconv.Itoa(s.Code) + " " + s.Text
}
