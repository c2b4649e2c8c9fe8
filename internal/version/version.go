// Package version хранит сведения о сборке, заданные через -ldflags:
//
//	-X github.com/vladislavdragonenkov/auctionledger/internal/version.version=v1.2.0
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Service: имя сервиса в логах, health-ответах и метрике build_info.
const Service = "auction-ledger"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает текущую сборку.
type Build struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о запущенной сборке.
func Current() Build {
	return Build{Service: Service, Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает только версию сборки.
func GetVersion() string { return version }

func (b Build) String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", b.Service, b.Version, b.Commit, b.Date)
}

// LogFields: поля сборки для стартового сообщения.
func (b Build) LogFields() log.Fields {
	return log.Fields{
		"service": b.Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}

// IsRelease сообщает, что версия проставлена при сборке.
func (b Build) IsRelease() bool {
	return b.Version != "" && b.Version != "dev"
}
