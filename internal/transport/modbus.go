package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"ec-ph-doser/internal/config"
)

// ModbusAdapter reads EC, pH, and solution temperature from fixed holding
// registers over Modbus RTU. Register addresses and scaling are per-device
// configuration: probe firmwares disagree on decimal placement.
type ModbusAdapter struct {
	cfg    config.TransportConfig
	logger zerolog.Logger
}

// NewModbus constructs a register-based adapter.
func NewModbus(cfg config.TransportConfig, logger zerolog.Logger) *ModbusAdapter {
	return &ModbusAdapter{
		cfg:    cfg,
		logger: logger.With().Str("component", "transport_modbus").Logger(),
	}
}

// Acquire reads all three registers in one connection, retrying the whole
// exchange on failure up to the configured attempt budget.
func (a *ModbusAdapter) Acquire(ctx context.Context) (Sample, error) {
	var sample Sample

	err := Retry(ctx, a.cfg.Attempts, a.cfg.RetryDelay, func() error {
		s, err := a.readOnce()
		if err != nil {
			a.logger.Debug().Err(err).Msg("register read failed")
			return err
		}
		sample = s
		return nil
	})
	if err != nil {
		return Sample{}, err
	}
	return sample, nil
}

func (a *ModbusAdapter) readOnce() (Sample, error) {
	handler := modbus.NewRTUClientHandler(a.cfg.Port)
	handler.BaudRate = a.cfg.Baud
	handler.DataBits = a.cfg.DataBits
	handler.Parity = a.cfg.Parity
	handler.StopBits = a.cfg.StopBits
	handler.SlaveId = a.cfg.SlaveID
	handler.Timeout = a.cfg.TotalTimeout

	if err := handler.Connect(); err != nil {
		return Sample{}, fmt.Errorf("connect %s: %w", a.cfg.Port, err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)

	ph, err := readRegister(client, a.cfg.Registers.PH)
	if err != nil {
		return Sample{}, fmt.Errorf("read ph register: %w", err)
	}
	ec, err := readRegister(client, a.cfg.Registers.EC)
	if err != nil {
		return Sample{}, fmt.Errorf("read ec register: %w", err)
	}
	temp, err := readRegister(client, a.cfg.Registers.Temperature)
	if err != nil {
		return Sample{}, fmt.Errorf("read temperature register: %w", err)
	}

	return Sample{EC: &ec, PH: &ph, Temperature: &temp, At: time.Now()}, nil
}

func readRegister(client modbus.Client, reg config.RegisterConfig) (float64, error) {
	results, err := client.ReadHoldingRegisters(reg.Address, 1)
	if err != nil {
		return 0, err
	}
	if len(results) < 2 {
		return 0, ErrNoData
	}
	raw := float64(binary.BigEndian.Uint16(results))

	divisor := reg.Divisor
	if divisor == 0 {
		divisor = 1
	}
	scale := reg.Scale
	if scale == 0 {
		scale = 1
	}
	return raw / divisor * scale, nil
}
