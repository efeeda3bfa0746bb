// Package version описывает сборку сервиса. Значения задаются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/checkout/internal/version.version=v1.2.0
//	-X github.com/vladislavdragonenkov/checkout/internal/version.commit=$(git rev-parse HEAD)
//
// Без ldflags коммит и дата берутся из VCS-меток, которые go build вшивает в бинарник.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build — сведения о запущенном бинарнике.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current собирает Build из ldflags и debug.BuildInfo.
func Current() Build {
	b := Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.withSettings(info.Settings)
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = unknown
	}
	if b.Date == "" {
		b.Date = unknown
	}
	return b
}

// withSettings дополняет пустые поля значениями vcs.* из сборки.
func (b Build) withSettings(settings []debug.BuildSetting) Build {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit обрезает хэш до 12 символов.
func (b Build) ShortCommit() string {
	if len(b.Commit) > 12 {
		return b.Commit[:12]
	}
	return b.Commit
}

func (b Build) String() string {
	s := fmt.Sprintf("checkout-service %s (commit %s, built %s, %s)", b.Version, b.ShortCommit(), b.Date, b.GoVersion)
	if b.Modified {
		s += " dirty"
	}
	return s
}
