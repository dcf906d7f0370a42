package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserName     string    `gorm:"uniqueIndex;size:50" json:"username"`
	Role         string    `gorm:"size:16" json:"role"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Parcel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;index" json:"owner_id"`
	Name      string    `gorm:"size:100" json:"name"`
	Geometry  string    `gorm:"type:text" json:"geometry"` // GeoJSON
	CreatedAt time.Time `json:"created_at"`
}

type Sensor struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParcelID   uuid.UUID  `gorm:"type:uuid;index" json:"parcel_id"`
	Name       string     `gorm:"size:100" json:"name"`
	Kind       string     `gorm:"size:32" json:"kind"`
	Status     string     `gorm:"size:16" json:"status"` // "connected" or "disconnected"
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Measurement struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SensorID   uuid.UUID `gorm:"type:uuid;index" json:"sensor_id"`
	Metric     string    `gorm:"size:32" json:"metric"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

// Sensor kinds accepted on connect.
var SensorKinds = []string{"soil_moisture", "air_temp", "air_humidity", "solar_radiation", "precipitation"}

func IsValidSensorKind(kind string) bool {
	for _, k := range SensorKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Store interfaces promise only CRUD semantics so a different persistence
// layer is a drop-in replacement; callers must not assume iteration order.

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByName(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUserRole(ctx context.Context, id uuid.UUID, role string) (*User, error)
	UpsertIdentity(ctx context.Context, id uuid.UUID, username, role string) (*User, error)
}

type ParcelStore interface {
	GetParcel(ctx context.Context, id uuid.UUID) (*Parcel, error)
	ListParcels(ctx context.Context, ownerID *uuid.UUID) ([]Parcel, error)
	CreateParcel(ctx context.Context, p *Parcel) error
	DeleteParcel(ctx context.Context, id uuid.UUID) error
}

type SensorStore interface {
	GetSensor(ctx context.Context, id uuid.UUID) (*Sensor, error)
	ListSensors(ctx context.Context) ([]Sensor, error)
	CreateSensor(ctx context.Context, s *Sensor) error
	DeleteSensor(ctx context.Context, id uuid.UUID) error
	TouchSensor(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MeasurementStore interface {
	CreateMeasurement(ctx context.Context, m *Measurement) error
	ListMeasurements(ctx context.Context, sensorID *uuid.UUID, since *time.Time) ([]Measurement, error)
}
