package patient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the patient service can report.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAlreadyExists
	KindDuplicateMRN
	KindDuplicateEmail
	KindDuplicatePhone
	KindDatabase
	KindNetwork
)

var kindCodes = map[Kind]string{
	KindUnknown:        "UNKNOWN_ERROR",
	KindValidation:     "VALIDATION_ERROR",
	KindNotFound:       "PATIENT_NOT_FOUND",
	KindAlreadyExists:  "PATIENT_ALREADY_EXISTS",
	KindDuplicateMRN:   "DUPLICATE_MEDICAL_RECORD_NUMBER",
	KindDuplicateEmail: "DUPLICATE_EMAIL",
	KindDuplicatePhone: "DUPLICATE_PHONE_NUMBER",
	KindDatabase:       "DATABASE_ERROR",
	KindNetwork:        "NETWORK_ERROR",
}

// Code is the stable machine-readable identifier sent to clients.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindDuplicateMRN, KindDuplicateEmail, KindDuplicatePhone:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsConflict reports whether k is one of the uniqueness violations.
func (k Kind) IsConflict() bool {
	return k.Status() == http.StatusConflict
}

// Error is the single error type returned by the service layer.
type Error struct {
	Kind    Kind
	Message string
	// Fields maps a request field path to its validation message.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) StatusCode() int { return e.Kind.Status() }

func (e *Error) ErrorCode() string { return e.Kind.Code() }

func (e *Error) FieldErrors() map[string]string { return e.Fields }

// PublicMessage hides wrapped storage detail from clients.
func (e *Error) PublicMessage() string { return e.Message }

func errNotFound(field, value string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Patient with %s: %s not found", field, value)}
}

// ErrNotFoundByID is returned when no patient has the given identifier.
func ErrNotFoundByID(id string) *Error { return errNotFound("id", id) }

func ErrNotFoundByMRN(mrn string) *Error { return errNotFound("medicalRecordNumber", mrn) }

func errDuplicate(kind Kind, field, value string) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf("Patient with %s: %s already exists", field, value)}
}

func ErrDuplicateMRN(mrn string) *Error {
	return errDuplicate(KindDuplicateMRN, "medicalRecordNumber", mrn)
}

func ErrDuplicateEmail(email string) *Error {
	return errDuplicate(KindDuplicateEmail, "email", email)
}

func ErrDuplicatePhone(phone string) *Error {
	return errDuplicate(KindDuplicatePhone, "phoneNumber", phone)
}

// ErrValidation carries per-field messages keyed by JSON path.
func ErrValidation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func ErrDatabase(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: "Database error during " + op, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
