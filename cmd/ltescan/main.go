// Command ltescan runs the blind LTE downlink cell-search pipeline against
// a capture backend and reports found/tracked cells to a dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openltescan/ltescan/internal/capture"
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/search"
	"github.com/openltescan/ltescan/internal/logging"
	"github.com/openltescan/ltescan/internal/telemetry"
	"github.com/openltescan/ltescan/internal/tracker"
)

func main() {
	const configPath = "config.json"

	persistentCfg, err := loadOrCreateConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persistentCfg)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		log.Fatalf("save config: %v", err)
	}

	logLevel, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		log.Fatalf("parse log level: %v", err)
	}
	logFormat, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		log.Fatalf("parse log format: %v", err)
	}
	logger := logging.New(logLevel, logFormat, os.Stderr)
	logging.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := selectSource(cfg)
	if err != nil {
		log.Fatalf("select capture backend: %v", err)
	}
	defer src.Close()

	var reporters []telemetry.Reporter
	if cfg.webAddr != "" {
		hub := telemetry.NewHub(cfg.historyLimit)
		reporters = append(reporters, hub)
		go telemetry.NewWebServer(cfg.webAddr, hub).Start(ctx)
		logger.Info("web dashboard listening", logging.Field{Key: "addr", Value: cfg.webAddr})
	}
	if cfg.dashboard == "stdout" || cfg.webAddr == "" {
		reporters = append(reporters, telemetry.NewStdoutReporter(logger))
	}

	params := search.DefaultParams(cfg.fcRequested, cfg.fcRequested, cfg.fsProgrammed)
	params.Twist = cfg.twist
	params.DSCombArm = cfg.dsCombArm
	params.Thresh1NSigma = cfg.thresh1
	params.Thresh2NSigma = cfg.thresh2
	params.Logger = logger
	if cfg.fSearchSpan > 0 && cfg.fSearchStep > 0 {
		var fSearch []float64
		for f := -cfg.fSearchSpan; f <= cfg.fSearchSpan; f += cfg.fSearchStep {
			fSearch = append(fSearch, f)
		}
		params.FSearch = fSearch
	}

	mgr := tracker.NewManager(cfg.maxTracks, time.Duration(cfg.trackTimeoutSec)*time.Second,
		telemetry.MultiReporter(reporters), tracker.Params{Logger: logger, SpectrumSize: cfg.spectrumSize})

	logger.Info("starting search loop", logging.Field{Key: "fc_requested", Value: cfg.fcRequested})
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := runOnce(ctx, src, params, mgr, cfg, logger); err != nil {
			logger.Warn("search iteration failed", logging.Field{Key: "error", Value: err.Error()})
		}
		mgr.Expire()
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(cfg.pollIntervalMS) * time.Millisecond):
		}
	}
	logger.Info("ltescan exiting")
}

func runOnce(ctx context.Context, src capture.Source, params search.Params, mgr *tracker.Manager, cfg cliConfig, logger logging.Logger) error {
	buf, err := src.Capture(ctx, capture.Request{FcRequested: cfg.fcRequested, Correction: cfg.correctionPPM})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	params.FcProgrammed = buf.FcProgrammed
	if !math.IsNaN(buf.FsProgrammed) && buf.FsProgrammed > 0 {
		params.FsProgrammed = buf.FsProgrammed
	}

	cells, err := search.Acquire(ctx, buf.Samples, params)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	for _, c := range cells {
		if !c.SSSValid {
			continue
		}
		mgr.Upsert(ctx, c, buf)
	}
	logger.Debug("search iteration complete", logging.Field{Key: "cells", Value: len(cells)})
	return nil
}

func selectSource(cfg cliConfig) (capture.Source, error) {
	switch cfg.backend {
	case "file":
		return capture.NewFileSource(cfg.filePath), nil
	case "mock":
		return capture.NewMock(capture.MockConfig{NID2: cfg.mockNID2, SNRdB: cfg.mockSNRdB}), nil
	case "rtlsdr":
		return capture.NewRTL(cfg.rtlDevice), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.backend)
	}
}

type cliConfig struct {
	fcRequested     float64
	correctionPPM   float64
	fsProgrammed    float64
	fSearchSpan     float64
	fSearchStep     float64
	twist           bool
	dsCombArm       int
	thresh1         float64
	thresh2         float64
	backend         string
	filePath        string
	rtlDevice       string
	mockNID2        int
	mockSNRdB       float64
	maxTracks       int
	trackTimeoutSec int
	pollIntervalMS  int
	historyLimit    int
	webAddr         string
	dashboard       string
	logLevel        string
	logFormat       string
	spectrumSize    int
}

type persistentConfig struct {
	FcRequested     float64 `json:"fc_requested"`
	CorrectionPPM   float64 `json:"correction_ppm"`
	FsProgrammed    float64 `json:"fs_programmed"`
	FSearchSpan     float64 `json:"f_search_span"`
	FSearchStep     float64 `json:"f_search_step"`
	Twist           bool    `json:"twist"`
	DSCombArm       int     `json:"ds_comb_arm"`
	Thresh1         float64 `json:"thresh1_n_sigma"`
	Thresh2         float64 `json:"thresh2_n_sigma"`
	Backend         string  `json:"backend"`
	FilePath        string  `json:"file_path"`
	RTLDevice       string  `json:"rtl_device"`
	MockNID2        int     `json:"mock_n_id_2"`
	MockSNRdB       float64 `json:"mock_snr_db"`
	MaxTracks       int     `json:"max_tracks"`
	TrackTimeoutSec int     `json:"track_timeout_sec"`
	PollIntervalMS  int     `json:"poll_interval_ms"`
	HistoryLimit    int     `json:"history_limit"`
	WebAddr         string  `json:"web_addr"`
	Dashboard       string  `json:"dashboard"`
	LogLevel        string  `json:"log_level"`
	LogFormat       string  `json:"log_format"`
	SpectrumSize    int     `json:"spectrum_size"`
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("ltescan", flag.ContinueOnError)
	fs.Float64Var(&cfg.fcRequested, "fc-requested", envFloat(lookup, "LTESCAN_FC_REQUESTED", defaults.FcRequested), "Requested center frequency in Hz")
	fs.Float64Var(&cfg.correctionPPM, "correction-ppm", envFloat(lookup, "LTESCAN_CORRECTION_PPM", defaults.CorrectionPPM), "Known sample-clock correction in ppm")
	fs.Float64Var(&cfg.fsProgrammed, "fs-programmed", envFloat(lookup, "LTESCAN_FS_PROGRAMMED", defaults.FsProgrammed), "Programmed sample rate in Hz")
	fs.Float64Var(&cfg.fSearchSpan, "f-search-span", envFloat(lookup, "LTESCAN_F_SEARCH_SPAN", defaults.FSearchSpan), "Frequency pre-search span in Hz (0 => default 41-point table)")
	fs.Float64Var(&cfg.fSearchStep, "f-search-step", envFloat(lookup, "LTESCAN_F_SEARCH_STEP", defaults.FSearchStep), "Frequency pre-search step in Hz")
	fs.BoolVar(&cfg.twist, "twist", envBool(lookup, "LTESCAN_TWIST", defaults.Twist), "Search every frequency hypothesis rather than pre-searching PPM")
	fs.IntVar(&cfg.dsCombArm, "ds-comb-arm", envInt(lookup, "LTESCAN_DS_COMB_ARM", defaults.DSCombArm), "Delay-spread comb half-width in samples")
	fs.Float64Var(&cfg.thresh1, "thresh1-n-sigma", envFloat(lookup, "LTESCAN_THRESH1_N_SIGMA", defaults.Thresh1), "First-stage peak-detection threshold in noise sigmas")
	fs.Float64Var(&cfg.thresh2, "thresh2-n-sigma", envFloat(lookup, "LTESCAN_THRESH2_N_SIGMA", defaults.Thresh2), "SSS log-likelihood threshold in sigmas")
	fs.StringVar(&cfg.backend, "backend", envString(lookup, "LTESCAN_BACKEND", defaults.Backend), "Capture backend (file|rtlsdr|mock)")
	fs.StringVar(&cfg.filePath, "file", envString(lookup, "LTESCAN_FILE", defaults.FilePath), "Capture file path for the file backend")
	fs.StringVar(&cfg.rtlDevice, "rtl-device", envString(lookup, "LTESCAN_RTL_DEVICE", defaults.RTLDevice), "RTL-SDR device identifier")
	fs.IntVar(&cfg.mockNID2, "mock-n-id-2", envInt(lookup, "LTESCAN_MOCK_NID2", defaults.MockNID2), "Synthetic n_id_2 for the mock backend")
	fs.Float64Var(&cfg.mockSNRdB, "mock-snr-db", envFloat(lookup, "LTESCAN_MOCK_SNR_DB", defaults.MockSNRdB), "Synthetic PSS SNR in dB for the mock backend")
	fs.IntVar(&cfg.maxTracks, "max-tracks", envInt(lookup, "LTESCAN_MAX_TRACKS", defaults.MaxTracks), "Maximum concurrently tracked cells")
	fs.IntVar(&cfg.trackTimeoutSec, "track-timeout-sec", envInt(lookup, "LTESCAN_TRACK_TIMEOUT_SEC", defaults.TrackTimeoutSec), "Seconds of silence before a track is dropped")
	fs.IntVar(&cfg.pollIntervalMS, "poll-interval-ms", envInt(lookup, "LTESCAN_POLL_INTERVAL_MS", defaults.PollIntervalMS), "Milliseconds between search iterations")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "LTESCAN_HISTORY_LIMIT", defaults.HistoryLimit), "Maximum samples kept in telemetry history")
	fs.StringVar(&cfg.webAddr, "web-addr", envString(lookup, "LTESCAN_WEB_ADDR", defaults.WebAddr), "Optional web dashboard listen address (e.g. :8080)")
	fs.StringVar(&cfg.dashboard, "dashboard", envString(lookup, "LTESCAN_DASHBOARD", defaults.Dashboard), "Dashboard backend (stdout|web)")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "LTESCAN_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "LTESCAN_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.IntVar(&cfg.spectrumSize, "spectrum-size", envInt(lookup, "LTESCAN_SPECTRUM_SIZE", defaults.SpectrumSize), "FFT size for each track's dBFS spectrum view (0 disables it)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		FcRequested:     cfg.fcRequested,
		CorrectionPPM:   cfg.correctionPPM,
		FsProgrammed:    cfg.fsProgrammed,
		FSearchSpan:     cfg.fSearchSpan,
		FSearchStep:     cfg.fSearchStep,
		Twist:           cfg.twist,
		DSCombArm:       cfg.dsCombArm,
		Thresh1:         cfg.thresh1,
		Thresh2:         cfg.thresh2,
		Backend:         cfg.backend,
		FilePath:        cfg.filePath,
		RTLDevice:       cfg.rtlDevice,
		MockNID2:        cfg.mockNID2,
		MockSNRdB:       cfg.mockSNRdB,
		MaxTracks:       cfg.maxTracks,
		TrackTimeoutSec: cfg.trackTimeoutSec,
		PollIntervalMS:  cfg.pollIntervalMS,
		HistoryLimit:    cfg.historyLimit,
		WebAddr:         cfg.webAddr,
		Dashboard:       cfg.dashboard,
		LogLevel:        cfg.logLevel,
		LogFormat:       cfg.logFormat,
		SpectrumSize:    cfg.spectrumSize,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	var cfg persistentConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		FcRequested:     739e6,
		CorrectionPPM:   0,
		FsProgrammed:    lte.FSLTE,
		FSearchSpan:     0,
		FSearchStep:     5e3,
		Twist:           true,
		DSCombArm:       lte.DSCombArmDefault,
		Thresh1:         lte.Thresh1NSigmaDefault,
		Thresh2:         lte.Thresh2NSigmaDefault,
		Backend:         "mock",
		FilePath:        "",
		RTLDevice:       "",
		MockNID2:        0,
		MockSNRdB:       20,
		MaxTracks:       8,
		TrackTimeoutSec: 30,
		PollIntervalMS:  1000,
		HistoryLimit:    500,
		WebAddr:         "",
		Dashboard:       "stdout",
		LogLevel:        "info",
		LogFormat:       "text",
		SpectrumSize:    0,
	}
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
