package store

import (
	"context"

	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sirupsen/logrus"
)

type Store interface {
	Device() Device
	Telemetry() Telemetry
	Alert() Alert
	Firmware() Firmware
	Event() Event
	Analytics() Analytics
	CheckHealth(ctx context.Context) error
	Close() error
}

type DataStore struct {
	device    Device
	telemetry Telemetry
	alert     Alert
	firmware  Firmware
	event     Event
	analytics Analytics

	kv kvstore.KVStore
}

func NewStore(kv kvstore.KVStore, log logrus.FieldLogger) Store {
	return &DataStore{
		device:    NewDevice(kv, log),
		telemetry: NewTelemetry(kv, log),
		alert:     NewAlert(kv, log),
		firmware:  NewFirmware(kv, log),
		event:     NewEvent(kv, log),
		analytics: NewAnalytics(kv, log),
		kv:        kv,
	}
}

func (s *DataStore) Device() Device {
	return s.device
}

func (s *DataStore) Telemetry() Telemetry {
	return s.telemetry
}

func (s *DataStore) Alert() Alert {
	return s.alert
}

func (s *DataStore) Firmware() Firmware {
	return s.firmware
}

func (s *DataStore) Event() Event {
	return s.event
}

func (s *DataStore) Analytics() Analytics {
	return s.analytics
}

func (s *DataStore) CheckHealth(ctx context.Context) error {
	return s.kv.CheckHealth(ctx)
}

func (s *DataStore) Close() error {
	return s.kv.Close()
}
