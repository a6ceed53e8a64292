package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"gatehouse.dev/internal/obs"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	obs.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON reads exactly one JSON document into dst and validates it.
// Unknown fields are ignored so clients may send extra keys such as role.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return validate.Struct(dst)
}

// badRequest answers a decode or validation failure.
func badRequest(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]map[string]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, map[string]string{
				"field": lowerFirst(fe.Field()),
				"rule":  fe.Tag(),
			})
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": details,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

type pageParams struct {
	Page  int
	Limit int
}

func (p pageParams) offset() int { return (p.Page - 1) * p.Limit }

// parsePage reads page and limit query parameters.
func parsePage(r *http.Request, defLimit, maxLimit int) (pageParams, error) {
	page, err := parsePositiveInt(r.URL.Query().Get("page"), "page", 1, 1, 1<<20)
	if err != nil {
		return pageParams{}, err
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), "limit", defLimit, 1, maxLimit)
	if err != nil {
		return pageParams{}, err
	}
	return pageParams{Page: page, Limit: limit}, nil
}

func parsePositiveInt(raw, name string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func totalPages(total, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
