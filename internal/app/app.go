package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ec-ph-doser/internal/actuator"
	"ec-ph-doser/internal/automode"
	"ec-ph-doser/internal/buslock"
	"ec-ph-doser/internal/config"
	"ec-ph-doser/internal/controller"
	"ec-ph-doser/internal/filter"
	"ec-ph-doser/internal/monitor"
	"ec-ph-doser/internal/schedule"
	"ec-ph-doser/internal/storage"
	"ec-ph-doser/internal/telemetry"
	"ec-ph-doser/internal/transport"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAdapter() transport.Adapter {
	if a.Config.Transport.Kind == "framed" {
		return transport.NewFramed(a.Config.Transport, a.Logger)
	}
	return transport.NewModbus(a.Config.Transport, a.Logger)
}

// newChannels builds the per-channel sanitation pipelines. withHampel
// attaches cross-cycle outlier state; the median strategy validates each
// sample independently and needs none.
func (a *App) newChannels(withHampel bool) (ec, ph, temp filter.Channel) {
	build := func(cc config.ChannelConfig) filter.Channel {
		ch := filter.Channel{
			Valid: filter.Range{Min: cc.ValidMin, Max: cc.ValidMax},
			Cal:   filter.Calibration{Gain: cc.CalibrationGain, Offset: cc.CalibrationOffset},
		}
		if withHampel {
			ch.Hampel = filter.NewHampel(filter.HampelOptions{
				Window:        a.Config.Filter.HampelWindow,
				K:             a.Config.Filter.HampelK,
				ConfirmN:      a.Config.Filter.ConfirmN,
				ConfirmM:      a.Config.Filter.ConfirmM,
				AgreementBand: cc.AgreementBand,
			})
		}
		return ch
	}
	return build(a.Config.Channels.EC), build(a.Config.Channels.PH), build(a.Config.Channels.Temperature)
}

// openStores resolves the configured persistence sink. The closer is nil for
// sinks that hold no connections.
func (a *App) openStores(ctx context.Context) (storage.ReadingStore, storage.DoseStore, func(), error) {
	switch a.Config.Storage.Kind {
	case "postgres":
		if a.Config.Database.DSN == "" {
			return nil, nil, nil, errors.New("storage.kind is postgres but database.dsn is not configured")
		}
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		store := storage.NewStore(pool)
		return store, store, store.Close, nil
	default:
		cs := storage.NewCSVStore(a.Config.Storage.SensorCSV, a.Config.Storage.DoseCSV, a.Config.Storage.SyncWrites)
		return cs, cs, nil, nil
	}
}

func (a *App) dbErrorKind() string {
	if a.Config.Storage.Kind == "postgres" {
		return "db_error"
	}
	return "csv_error"
}

// Run executes the long-running dosing control service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cadence, err := schedule.Parse(a.Config.Schedule.Cadence)
	if err != nil {
		return fmt.Errorf("schedule.cadence: %w", err)
	}

	readings, doses, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	tele := telemetry.New(os.Stdout)
	watcher := automode.NewWatcher(os.Stdin, a.Config.AutoMode.RunValue)
	lock := buslock.New(a.Config.BusLock.Path)
	emitter := actuator.NewHostEmitter(tele, a.Config.Actuators.OnValue, a.Config.Actuators.OffValue)
	ec, ph, temp := a.newChannels(a.Config.Filter.Strategy == "hampel")

	session := controller.New(
		controller.Options{
			Cadence:         cadence,
			SeedCurrentSlot: a.Config.Schedule.SeedCurrentSlot,
			PollInterval:    a.Config.Schedule.PollInterval,
			WaitInterval:    a.Config.AutoMode.WaitInterval,
			DosePollEvery:   a.Config.Schedule.DosePollEvery,
			Strategy:        a.Config.Filter.Strategy,
			MedianReads:     a.Config.Filter.MedianReads,
			MedianMin:       a.Config.Filter.MedianMin,
			ReadGap:         a.Config.Filter.ReadGap,
			ECMin:           a.Config.Control.ECMin,
			PHMax:           a.Config.Control.PHMax,
			DoseML:          a.Config.Control.DoseML,
			PumpMLPerSec:    a.Config.Control.PumpMLPerSec,
			ABTopic:         a.Config.Actuators.ABTopic,
			AcidTopic:       a.Config.Actuators.AcidTopic,
			DBErrorKind:     a.dbErrorKind(),
		},
		a.newAdapter(), lock, emitter, watcher, readings, doses, tele, ec, ph, temp, a.Logger,
	)

	a.Logger.Info().Str("line", a.Config.App.Line).Msg("starting dosing service")
	err = session.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("dosing service terminated with error")
		return err
	}

	a.Logger.Info().Msg("dosing service stopped")
	return nil
}

// Monitor executes the report-only sensor loop.
func (a *App) Monitor(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	readings, _, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	tele := telemetry.New(os.Stdout)
	watcher := automode.NewWatcher(os.Stdin, a.Config.AutoMode.RunValue)
	lock := buslock.New(a.Config.BusLock.Path)
	// The monitor always filters: a report is only useful when it is a
	// confirmed value rather than a single raw sample.
	ec, ph, temp := a.newChannels(true)

	mon := monitor.New(
		monitor.Options{
			PollEvery:     a.Config.Monitor.PollEvery,
			ReportMinutes: a.Config.Monitor.ReportMinutes,
		},
		a.newAdapter(), lock, watcher, readings, tele, ec, ph, temp, a.Logger,
	)

	a.Logger.Info().Str("line", a.Config.App.Line).Msg("starting monitor service")
	err = mon.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitor service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical readings.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Doses bool
}

// ImportOptions configure the CSV-to-database backfill.
type ImportOptions struct {
	Path   string
	DryRun bool
}
