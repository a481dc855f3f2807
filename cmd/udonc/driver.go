package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/udon-lang/udonc/pkg/catalogio"
	"github.com/udon-lang/udonc/pkg/compilemetrics"
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/logging"
	"github.com/udon-lang/udonc/pkg/pipeline"
	"github.com/udon-lang/udonc/pkg/telemetry"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

// buildDriver assembles a pipeline.Driver from the command's flags:
// an optional YAML catalog (falling back to the built-in reference
// registry), the requested optimization level, and the ambient
// logging/telemetry/metrics stack.
func buildDriver(cmd *cobra.Command, serviceName string) (*pipeline.Driver, func(), error) {
	catalogPath, _ := cmd.Flags().GetString("catalog")
	optLevel, _ := cmd.Flags().GetUint8("opt-level")
	useOTLP, _ := cmd.Flags().GetBool("otlp")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	var catalog extern.Catalog
	var events vrcevent.Registry
	if catalogPath != "" {
		c := catalogio.New()
		if err := c.LoadFile(catalogPath); err != nil {
			return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		catalog = c
		events = c
	} else {
		catalog = builtinEmptyCatalog{}
		events = vrcevent.NewReference()
	}

	logger, err := logging.NewLogger(logging.LoggerConfig{
		MinLevel: logging.INFO,
		Format:   logging.TextFormat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tCfg := telemetry.DefaultConfig()
	tCfg.ServiceName = serviceName
	if useOTLP {
		tCfg.ExporterType = "otlp"
		tCfg.OTLPEndpoint = otlpEndpoint
	}
	provider, err := telemetry.Init(tCfg)
	if err != nil {
		logger.Close()
		return nil, nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	metrics := compilemetrics.New(compilemetrics.DefaultConfig())

	cfg := config.Default()
	cfg.OptimizationLevel = mapOptLevel(optLevel)

	driver := &pipeline.Driver{
		Catalog:   catalog,
		Events:    events,
		Config:    cfg,
		Logger:    logger,
		Telemetry: provider,
		Metrics:   metrics,
	}

	cleanup := func() {
		logger.Close()
	}
	return driver, cleanup, nil
}

func mapOptLevel(level uint8) config.OptimizationLevel {
	switch {
	case level == 0:
		return config.OptNone
	case level >= 3:
		return config.OptAggressive
	default:
		return config.OptBasic
	}
}

// builtinEmptyCatalog is used when no --catalog flag is supplied: a
// compile against it will fail with ExternMissing as soon as the
// program touches an extern, which is the expected behaviour without a
// real reference catalog (§7).
type builtinEmptyCatalog struct{}

func (builtinEmptyCatalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	return "", false
}
func (builtinEmptyCatalog) ComputeTypeID(typeName string) uint64 { return 0 }

func changeExtension(path, newExt string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[:idx] + newExt
	}
	return path + newExt
}
