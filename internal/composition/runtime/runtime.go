// Package runtime wires configuration, logging, metrics and the identity
// components into the process-wide registry used by the command-line tools.
package runtime

import (
	"fmt"
	"io"
	"log/slog"

	"lensmint/device-identity/internal/config"
	"lensmint/device-identity/internal/fingerprint"
	"lensmint/device-identity/internal/identity"
	"lensmint/device-identity/internal/platform/metrics"
	"lensmint/device-identity/internal/platform/privacylog"
	"lensmint/device-identity/internal/saltstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type Runtime struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Salts     *saltstore.Store
	Collector *fingerprint.Collector
	Registry  *identity.Registry
}

// New builds a runtime from cfg. Log records go to logOut. Nothing touches
// the filesystem until the registry is first used.
func New(cfg config.Config, logOut io.Writer) (*Runtime, error) {
	logger := privacylog.NewLogger(logOut, cfg.LogLevel)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	salts := saltstore.New(saltstore.Options{
		PrimaryPath: cfg.Salt.PrimaryPath,
		BackupPath:  cfg.Salt.BackupPath,
		Logger:      logger.With("component", "saltstore"),
		Metrics:     m,
	})
	collector := fingerprint.NewCollector(cfg.Fingerprint, logger.With("component", "fingerprint"))

	registry := identity.NewRegistry(identity.RegistryOptions{
		DefaultCameraID: cfg.CameraID,
		Build: identity.BuilderFor(identity.Options{
			Salts:        salts,
			Fingerprints: collector,
			Logger:       logger.With("component", "identity"),
			Metrics:      m,
		}),
		Logger: logger.With("component", "registry"),
	})

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Gatherer:  reg,
		Salts:     salts,
		Collector: collector,
		Registry:  registry,
	}, nil
}

// WriteMetrics dumps the collected counters in the Prometheus text format.
func (r *Runtime) WriteMetrics(w io.Writer) error {
	families, err := r.Gatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
