package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
)

type ExportHandler struct {
	measurements store.MeasurementStore
}

func NewExportHandler(measurements store.MeasurementStore) *ExportHandler {
	return &ExportHandler{measurements: measurements}
}

// HandleMeasurementsCSV streams stored measurements as a CSV attachment,
// optionally filtered by sensor_id and since.
func (h *ExportHandler) HandleMeasurementsCSV(w http.ResponseWriter, r *http.Request) {
	var sensorID *uuid.UUID
	if raw := r.URL.Query().Get("sensor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.BadRequest("invalid sensor id"))
			return
		}
		sensorID = &id
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.BadRequest("since must be RFC3339"))
			return
		}
		since = &parsed
	}

	ms, err := h.measurements.ListMeasurements(r.Context(), sensorID, since)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to load measurements", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="measurements.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"sensor_id", "metric", "value", "recorded_at"})
	for _, m := range ms {
		_ = cw.Write([]string{
			m.SensorID.String(),
			m.Metric,
			strconv.FormatFloat(m.Value, 'f', -1, 64),
			m.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
