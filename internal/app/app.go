package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"relaywatch/internal/config"
	"relaywatch/internal/logger"
	"relaywatch/internal/middleware"
	"relaywatch/internal/repository/sqlite"
	"relaywatch/internal/route"
	"relaywatch/internal/service"
	"relaywatch/internal/service/actuator"
	"relaywatch/internal/service/ai"
	"relaywatch/internal/service/automation"
	"relaywatch/internal/service/capture"
	"relaywatch/internal/service/display"
	"relaywatch/internal/service/eventlog"
	"relaywatch/internal/service/notify"
	"relaywatch/internal/service/state"
	"relaywatch/internal/service/websocket"
)

// stores opens the shared-state and audit databases used by both processes.
type stores struct {
	stateDB  *sqlite.DB
	eventsDB *sqlite.DB
	kv       *sqlite.StateStore
	events   *eventlog.Logger
}

func openStores(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*stores, error) {
	stateDB, err := sqlite.New(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	eventsDB, err := sqlite.New(cfg.EventLogPath)
	if err != nil {
		stateDB.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &stores{
		stateDB:  stateDB,
		eventsDB: eventsDB,
		kv:       sqlite.NewStateStore(stateDB),
		events:   eventlog.New(ctx, sqlite.NewEventRepository(eventsDB), logger.With("eventlog")),
	}, nil
}

func (s *stores) Close() {
	s.stateDB.Close()
	s.eventsDB.Close()
}

// IngestApp is the ingestion process: camera, detection, viewers and the
// current_count writer.
type IngestApp struct {
	config   *config.Config
	logger   *logger.Logger
	stores   *stores
	detector *ai.YOLODetector
	counts   *state.AsyncCountWriter
	hub      *websocket.HubService
	display  *display.Display
	manager  *service.Manager
	session  *middleware.Session
}

func NewIngestApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*IngestApp, error) {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// Without a model ingestion refuses to start; the HTTP surface still
	// serves and /api/state reports the error.
	var predictor ai.Predictor
	detector, err := ai.NewYOLODetector(ai.YOLOConfig{ModelPath: cfg.ModelPath}, log.With("ai"))
	if err != nil {
		log.Error("Detector unavailable: %v", err)
	} else {
		predictor = detector
	}

	pipeline := ai.NewPipeline(predictor, ai.PipelineConfig{
		InferEveryN: cfg.InferEveryN,
		InferWidth:  cfg.InferWidth,
		Confidence:  float32(cfg.ConfidenceThreshold),
		DrawBoxes:   cfg.DrawBoxes,
	}, log.With("ai"))

	source := capture.NewSource(capture.Options{
		URL:         cfg.RTSPURL(),
		ReopenAfter: cfg.ReopenAfterFails,
	}, capture.FFmpegOpener(cfg.CaptureTimeout), log.With("capture"))

	counts := state.NewAsyncCountWriter(state.NewIngestWriter(st.kv), log.With("state"))
	hub := websocket.NewHubService(log.With("viewers"))
	disp := display.New(hub, log.With("display"))

	manager := service.NewManager(source, pipeline, disp, counts, service.ManagerOptions{
		StopGrace:    cfg.StopGrace,
		RetryBackoff: cfg.FrameRetryBackoff,
	}, log.With("ingest"))

	return &IngestApp{
		config:   cfg,
		logger:   log,
		stores:   st,
		detector: detector,
		counts:   counts,
		hub:      hub,
		display:  disp,
		manager:  manager,
		session:  middleware.NewSession(),
	}, nil
}

// Run serves HTTP and ingests frames until ctx is cancelled.
func (a *IngestApp) Run(ctx context.Context) error {
	defer a.close()

	go a.hub.Run(ctx)
	go a.display.Run(ctx)

	// A stream that is down or a missing detector is not fatal to the
	// process; /api/ingest/restart retries.
	if err := a.manager.Start(ctx); err != nil {
		a.logger.Error("Ingestion not started: %v", err)
	}

	router := route.SetupRoutes(route.Deps{
		Hub:     a.hub,
		State:   state.NewReader(a.stores.kv, a.config.CountStaleAfter),
		Ingest:  a.manager,
		Events:  a.stores.events,
		Session: a.session,
	}, a.config, a.logger.With("http"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("🚀 Relay watch ingest")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("🤖 AI Model: %s", a.config.ModelPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (a *IngestApp) close() {
	if err := a.manager.Stop(); err != nil {
		a.logger.Warning("%v", err)
	}
	a.counts.Close()
	if a.detector != nil {
		a.detector.Close()
	}
	a.stores.Close()
}

// AutomationApp is the control process: it polls current_count and drives
// the relay.
type AutomationApp struct {
	logger   *logger.Logger
	stores   *stores
	notifier *notify.Dispatcher
	loop     *automation.Loop
}

func NewAutomationApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*AutomationApp, error) {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var transport notify.Notifier = notify.LogNotifier{Logger: log.With("notify")}
	if cfg.SMSPort != "" && cfg.SMSNumber != "" {
		transport = notify.NewSMSModem(cfg.SMSPort, cfg.SMSBaud, cfg.SMSCountryCode)
	}
	dispatcher := notify.NewDispatcher(transport, cfg.SMSNumber, log.With("notify"))

	ctrl := actuator.NewController(
		actuator.NewHTTPRelay(cfg.RelayURL, cfg.RelayUser, cfg.RelayPassword),
		dispatcher,
		actuator.Options{
			Timeout:    cfg.CommandTimeout,
			OnMessage:  cfg.SMSTurnOnMessage,
			OffMessage: cfg.SMSTurnOffMessage,
		},
		log.With("relay"),
	)

	loop := automation.NewLoop(
		state.NewReader(st.kv, cfg.CountStaleAfter),
		state.NewAutomationWriter(st.kv),
		ctrl,
		st.events,
		automation.Options{Interval: cfg.PollInterval, WindowSize: cfg.WindowSize},
		log.With("automation"),
	)

	return &AutomationApp{logger: log, stores: st, notifier: dispatcher, loop: loop}, nil
}

// Run drives the control loop until ctx is cancelled.
func (a *AutomationApp) Run(ctx context.Context) error {
	defer a.stores.Close()
	defer a.notifier.Close()

	a.logger.Info("🚀 Relay watch automation")
	return a.loop.Run(ctx)
}
