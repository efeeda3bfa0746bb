package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondCode(w http.ResponseWriter, httpCode int, code, message string) {
	respondJSON(w, httpCode, ErrorResponse{Error: message, Code: code})
}

// respondError пишет ошибку по её категории. Внутренние ошибки логируются.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	st := ToStatus(err)
	httpCode, code := HTTPStatus(st.Code())
	if httpCode >= http.StatusInternalServerError && httpCode != http.StatusBadGateway {
		requestLogger(r).WithError(err).Error("request failed")
	}
	respondCode(w, httpCode, code, st.Message())
}

// decodeJSON читает тело запроса; неизвестные поля допускаются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument)
	}
	return nil
}
