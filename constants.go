package gocbbridge

const (
	goCbBridgeVersionStr = "v1.0.0"
)

// Version returns a string representation of the current version.
func Version() string {
	return goCbBridgeVersionStr
}
