package version

import "fmt"

// Заполняется при сборке:
//
//	go build -ldflags "-X .../internal/version.release=v1.4.0 \
//	  -X .../internal/version.commit=$(git rev-parse --short HEAD) \
//	  -X .../internal/version.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Без ldflags остаются dev-значения, для локального запуска этого достаточно.
var (
	release   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Release возвращает версию релиза сервиса.
func Release() string { return release }

// Commit возвращает git-коммит сборки.
func Commit() string { return commit }

// BuildDate возвращает дату сборки.
func BuildDate() string { return buildDate }

// String собирает строку для стартового лога и health-ответа.
func String() string {
	return fmt.Sprintf("checkout %s (commit %s, built %s)", release, commit, buildDate)
}
