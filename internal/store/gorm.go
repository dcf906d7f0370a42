package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the gorm-backed implementation of all entity stores.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Parcel{}, &Sensor{}, &Measurement{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Open connects to Postgres, retrying while the database comes up.
func Open(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error
	for i := 0; i < 30; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			return New(db)
		}
		slog.Info("waiting for postgres", "attempt", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUserByName(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "user_name = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("user_name").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) UpdateUserRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	u.Role = role
	if err := s.db.WithContext(ctx).Save(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertIdentity mirrors an identity returned by the identity collaborator
// into the local store after a successful login.
func (s *Store) UpsertIdentity(ctx context.Context, id uuid.UUID, username, role string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = User{ID: id, UserName: username, Role: role}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	u.UserName = username
	u.Role = role
	if err := s.db.WithContext(ctx).Save(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetParcel(ctx context.Context, id uuid.UUID) (*Parcel, error) {
	var p Parcel
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) ListParcels(ctx context.Context, ownerID *uuid.UUID) ([]Parcel, error) {
	var parcels []Parcel
	q := s.db.WithContext(ctx)
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}
	if err := q.Order("created_at").Find(&parcels).Error; err != nil {
		return nil, err
	}
	return parcels, nil
}

func (s *Store) CreateParcel(ctx context.Context, p *Parcel) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) DeleteParcel(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&Parcel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSensor(ctx context.Context, id uuid.UUID) (*Sensor, error) {
	var sn Sensor
	if err := s.db.WithContext(ctx).First(&sn, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sn, nil
}

func (s *Store) ListSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	if err := s.db.WithContext(ctx).Order("created_at").Find(&sensors).Error; err != nil {
		return nil, err
	}
	return sensors, nil
}

func (s *Store) CreateSensor(ctx context.Context, sn *Sensor) error {
	return s.db.WithContext(ctx).Create(sn).Error
}

func (s *Store) DeleteSensor(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&Sensor{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchSensor(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", id).
		Updates(map[string]any{"last_seen_at": at, "status": "connected"}).Error
}

func (s *Store) CreateMeasurement(ctx context.Context, m *Measurement) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) ListMeasurements(ctx context.Context, sensorID *uuid.UUID, since *time.Time) ([]Measurement, error) {
	var ms []Measurement
	q := s.db.WithContext(ctx)
	if sensorID != nil {
		q = q.Where("sensor_id = ?", *sensorID)
	}
	if since != nil {
		q = q.Where("recorded_at >= ?", *since)
	}
	if err := q.Order("recorded_at").Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
