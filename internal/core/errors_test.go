package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMissingParameterError(t *testing.T) {
	err := NewMissingParameterError("datasetID")
	if err.Code != ErrConfiguration {
		t.Errorf("expected code %s, got %s", ErrConfiguration, err.Code)
	}
	if err.Message != "missing required parameter: datasetID" {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if err.Params["parameter"] != "datasetID" {
		t.Errorf("expected parameter param datasetID, got %v", err.Params)
	}
}

func TestCommunicationErrorCarriesStatus(t *testing.T) {
	err := NewCommunicationError(503, "Service Unavailable")
	if err.Params["status_code"] != "503" {
		t.Errorf("expected status_code 503, got %v", err.Params)
	}
	if err.Params["status_text"] != "Service Unavailable" {
		t.Errorf("expected status_text param, got %v", err.Params)
	}
	if err.Code.HTTPStatus() != 502 {
		t.Errorf("expected communication errors to map to 502, got %d", err.Code.HTTPStatus())
	}
}

func TestCreationErrorHidesCauseButUnwraps(t *testing.T) {
	cause := NewFailedImportError("Sales EMEA", "Failed")
	err := NewCreationError(cause)

	if err.Message != "workspace creation did not complete" {
		t.Errorf("creation error message should stay generic, got %s", err.Message)
	}

	var ae *AppError
	if !errors.As(errors.Unwrap(err), &ae) || ae.Code != ErrFailedImport {
		t.Errorf("expected cause to unwrap to failed import, got %v", errors.Unwrap(err))
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewMissingParameterError("groupID")); got != ErrConfiguration {
		t.Errorf("expected %s, got %s", ErrConfiguration, got)
	}
	// Wrapped errors keep their code.
	wrapped := fmt.Errorf("step 3: %w", NewCommunicationError(429, "Too Many Requests"))
	if got := CodeOf(wrapped); got != ErrCommunication {
		t.Errorf("expected %s through wrapping, got %s", ErrCommunication, got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("expected %s for plain errors, got %s", ErrInternal, got)
	}
}
