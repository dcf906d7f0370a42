package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
)

type SensorsHandler struct {
	sensors      store.SensorStore
	parcels      store.ParcelStore
	measurements store.MeasurementStore
}

func NewSensorsHandler(sensors store.SensorStore, parcels store.ParcelStore, measurements store.MeasurementStore) *SensorsHandler {
	return &SensorsHandler{sensors: sensors, parcels: parcels, measurements: measurements}
}

func (h *SensorsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.sensors.ListSensors(r.Context())
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to list sensors", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sensors": sensors})
}

type connectSensorRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	ParcelID string `json:"parcel_id"`
}

// HandleConnect registers a sensor against a parcel.
func (h *SensorsHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectSensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		apperrors.WriteError(w, apperrors.BadRequest("sensor name is required"))
		return
	}
	if !store.IsValidSensorKind(req.Kind) {
		apperrors.WriteError(w, apperrors.BadRequest("invalid sensor kind"))
		return
	}
	parcelID, err := uuid.Parse(req.ParcelID)
	if err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid parcel id"))
		return
	}
	if _, err := h.parcels.GetParcel(r.Context(), parcelID); errors.Is(err, store.ErrNotFound) {
		apperrors.WriteError(w, apperrors.NotFound("parcel not found"))
		return
	} else if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to load parcel", err))
		return
	}

	sn := &store.Sensor{
		ID:       uuid.New(),
		ParcelID: parcelID,
		Name:     req.Name,
		Kind:     req.Kind,
		Status:   "connected",
	}
	if err := h.sensors.CreateSensor(r.Context(), sn); err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to create sensor", err))
		return
	}
	slog.Info("sensor connected", "sensor", sn.ID, "parcel", parcelID, "kind", sn.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sn)
}

// HandleExtract pulls the stored measurement series for a sensor, optionally
// bounded by a `since` RFC3339 timestamp.
func (h *SensorsHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid sensor id"))
		return
	}
	sn, err := h.sensors.GetSensor(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apperrors.WriteError(w, apperrors.NotFound("sensor not found"))
		return
	} else if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to load sensor", err))
		return
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

	ms, err := h.measurements.ListMeasurements(r.Context(), &id, since)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to load measurements", err))
		return
	}
	if err := h.sensors.TouchSensor(r.Context(), id, time.Now().UTC()); err != nil {
		slog.Warn("failed to touch sensor", "sensor", id, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sensor": sn, "measurements": ms})
}

func (h *SensorsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid sensor id"))
		return
	}
	if err := h.sensors.DeleteSensor(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		apperrors.WriteError(w, apperrors.NotFound("sensor not found"))
		return
	} else if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to delete sensor", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
