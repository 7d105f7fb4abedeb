// Package errors defines the errno type shared by every OKR service layer.
//
// Code format: AABBCCC
//
//   - AA:  service code (00 common, 30 okr, 31 llm)
//   - BB:  category code
//   - CCC: sequence inside the category
//
// Categories map onto HTTP and gRPC statuses:
//
//	01 request (400)   04 resource (404)   05 conflict (409)
//	07 internal (500)  08 database (500)   09 cache (500)
//	10 network (502)   11 timeout (504)    12 config (500)
package errors

// Service codes.
const (
	ServiceCommon = 0
	ServiceOKR    = 30
	ServiceLLM    = 31
)

// Category codes.
const (
	CategorySuccess  = 0
	CategoryRequest  = 1
	CategoryResource = 4
	CategoryConflict = 5
	CategoryInternal = 7
	CategoryDatabase = 8
	CategoryCache    = 9
	CategoryNetwork  = 10
	CategoryTimeout  = 11
	CategoryConfig   = 12
)

// MakeCode builds an errno code from its three parts.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits an errno code into service, category and sequence.
func ParseCode(code int) (service, category, sequence int) {
	service = code / 100000
	category = (code / 1000) % 100
	sequence = code % 1000
	return
}
