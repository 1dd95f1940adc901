// Package version carries build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/airvpn-bridge/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/airvpn-bridge/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/airvpn-bridge/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Name is the program name used in the User-Agent and MQTT device metadata.
const Name = "airvpn-bridge"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "<version> (<commit>) built <time>".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent on every upstream request.
func UserAgent() string {
	ua := Name + "/" + Version
	if Commit != "unknown" {
		ua += "+" + Commit
	}
	return ua
}
