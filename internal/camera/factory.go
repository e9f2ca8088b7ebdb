package camera

import (
	"fmt"
	"sort"
	"sync"
)

// DriverSynthetic はテストパターンを生成する組み込みドライバー
const DriverSynthetic = "synthetic"

// DeviceCreator はシリアル番号からDeviceを作る関数の型
type DeviceCreator func(serial string) (Device, error)

// DeviceFactory はドライバー名ごとのDevice作成を担う
type DeviceFactory struct {
	mu       sync.RWMutex
	creators map[string]DeviceCreator
}

// NewDeviceFactory は組み込みドライバーを登録したファクトリーを作成する
func NewDeviceFactory() *DeviceFactory {
	factory := &DeviceFactory{
		creators: make(map[string]DeviceCreator),
	}

	factory.Register(DriverSynthetic, func(serial string) (Device, error) {
		return NewSyntheticDevice(serial), nil
	})

	return factory
}

// Register はドライバーを登録する。同名の登録は上書きする
func (f *DeviceFactory) Register(driver string, creator DeviceCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[driver] = creator
}

// Create はドライバー名とシリアル番号からDeviceを作成する
func (f *DeviceFactory) Create(driver, serial string) (Device, error) {
	if driver == "" {
		driver = DriverSynthetic
	}

	f.mu.RLock()
	creator, exists := f.creators[driver]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバー: %s", driver)
	}
	return creator(serial)
}

// Drivers は登録済みのドライバー名を返す
func (f *DeviceFactory) Drivers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	drivers := make([]string, 0, len(f.creators))
	for name := range f.creators {
		drivers = append(drivers, name)
	}
	sort.Strings(drivers)
	return drivers
}
