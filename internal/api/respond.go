package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Fields   []string          `json:"fields,omitempty"`
	Uploaded []models.Category `json:"uploaded,omitempty"`
	Pending  []models.Category `json:"pending,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorDuplicate, services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorStore:
		return http.StatusBadGateway
	case services.ErrorPartial:
		return http.StatusAccepted
	case services.ErrorCancelled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// writeError maps a service error onto an HTTP status. Anything that is not
// a ServiceError is an internal error and its text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Code: "too_large", Error: "request body too large"})
		return
	}
	se, ok := services.AsServiceError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal error"})
		return
	}
	status := statusFor(se.Code)
	if status >= 500 {
		log.Error().Err(err).Str("code", string(se.Code)).Msg("request failed")
	}
	writeJSON(w, status, errorBody{
		Code:     string(se.Code),
		Error:    se.Message,
		Fields:   se.Fields,
		Uploaded: se.Uploaded,
		Pending:  se.Pending,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return services.NewInvalidError("malformed JSON body")
	}
	return nil
}

// parseMultipart reads a multipart body bounded by limit. A request that is
// not multipart leaves the form empty so validation reports every field.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(limit)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	return services.NewInvalidError("malformed multipart body")
}

// formBlob returns the uploaded file of field, or nil when absent.
func formBlob(r *http.Request, field string) (*models.Blob, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &models.Blob{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

func zlogFrom(r *http.Request) *zerolog.Logger { return zerolog.Ctx(r.Context()) }
