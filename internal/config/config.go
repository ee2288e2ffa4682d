// Package config loads process configuration from GEOVOXEL_* environment
// variables. Commands overlay command-line flags on top of these values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "GEOVOXEL_"

// EngineConfig tunes a placement session.
type EngineConfig struct {
	OwnerID string `env:"OWNER_ID"`
	Color   string `env:"COLOR" envDefault:"#ff8800"`

	GridSpacing   float64 `env:"GRID_SPACING"   envDefault:"0.1"`
	ForwardOffset float64 `env:"FORWARD_OFFSET" envDefault:"1.2"`
	// ProximityEpsilon defaults to half the grid spacing when zero.
	ProximityEpsilon float64 `env:"PROXIMITY_EPSILON"`

	ViewRadius         float64 `env:"VIEW_RADIUS"          envDefault:"200"`
	RefreshDistance    float64 `env:"REFRESH_DISTANCE"     envDefault:"50"`
	MaxVisibleDistance float64 `env:"MAX_VISIBLE_DISTANCE" envDefault:"60"`

	MaxFixAccuracy float64       `env:"MAX_FIX_ACCURACY" envDefault:"50"`
	MaxFixAge      time.Duration `env:"MAX_FIX_AGE"      envDefault:"30s"`

	StoreTimeout   time.Duration `env:"STORE_TIMEOUT"    envDefault:"10s"`
	FeedRetryDelay time.Duration `env:"FEED_RETRY_DELAY" envDefault:"2s"`
}

// Epsilon returns the effective proximity threshold.
func (c EngineConfig) Epsilon() float64 {
	if c.ProximityEpsilon > 0 {
		return c.ProximityEpsilon
	}
	return c.GridSpacing / 2
}

// Validate rejects settings the engine cannot run with.
func (c EngineConfig) Validate() error {
	var errs []error
	if c.GridSpacing <= 0 {
		errs = append(errs, fmt.Errorf("grid spacing must be positive, got %v", c.GridSpacing))
	}
	if c.ViewRadius <= 0 {
		errs = append(errs, fmt.Errorf("view radius must be positive, got %v", c.ViewRadius))
	}
	if c.RefreshDistance < 0 || c.RefreshDistance >= c.ViewRadius {
		errs = append(errs, fmt.Errorf("refresh distance must be in [0, view radius), got %v", c.RefreshDistance))
	}
	if c.MaxVisibleDistance < 0 {
		errs = append(errs, fmt.Errorf("max visible distance must not be negative, got %v", c.MaxVisibleDistance))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive, got %v", c.StoreTimeout))
	}
	return errors.Join(errs...)
}

// StoreServerConfig configures cmd/voxel-store.
type StoreServerConfig struct {
	GRPCAddr    string `env:"STORE_GRPC_ADDR"    envDefault:"0.0.0.0:50061"`
	MetricsAddr string `env:"STORE_METRICS_ADDR" envDefault:":9102"`
	// SQLitePath selects the SQLite store; empty keeps entities in memory.
	SQLitePath string `env:"STORE_SQLITE_PATH"`
	FeedBuffer int    `env:"STORE_FEED_BUFFER" envDefault:"64"`
}

// SimConfig configures cmd/voxel-sim.
type SimConfig struct {
	Engine EngineConfig

	// StoreAddr dials a voxel-store server; empty uses an in-memory store.
	StoreAddr     string        `env:"SIM_STORE_ADDR"`
	MetricsAddr   string        `env:"SIM_METRICS_ADDR"   envDefault:":9103"`
	FrameInterval time.Duration `env:"SIM_FRAME_INTERVAL" envDefault:"33ms"`
	StartLat      float64       `env:"SIM_START_LAT"      envDefault:"37.7749"`
	StartLng      float64       `env:"SIM_START_LNG"      envDefault:"-122.4194"`
	WalkSpeed     float64       `env:"SIM_WALK_SPEED"     envDefault:"1.4"`
	PlaceEvery    time.Duration `env:"SIM_PLACE_EVERY"    envDefault:"3s"`
}

// LoadEngine parses EngineConfig from the environment.
func LoadEngine() (EngineConfig, error) {
	return parse[EngineConfig]()
}

// LoadStoreServer parses StoreServerConfig from the environment.
func LoadStoreServer() (StoreServerConfig, error) {
	return parse[StoreServerConfig]()
}

// LoadSim parses SimConfig from the environment.
func LoadSim() (SimConfig, error) {
	return parse[SimConfig]()
}

func parse[T any]() (T, error) {
	var cfg T
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
