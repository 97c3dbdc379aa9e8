package conf

import (
	"time"

	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
)

type Config struct {
	DirPath        string
	HttpPort       string
	RedisSlots     int
	FleetSlots     int
	Bands          *slots.BandTable
	Zookeeper      []string
	ZNodeBasePath  string
	SessionTimeout time.Duration
	PublishBands   bool
	Persist        bool
	ChunkSize      int
	Concurrency    int
	Logger         *zap.Logger
}

func (c Config) UseZookeeper() bool {
	return len(c.Zookeeper) > 0
}
