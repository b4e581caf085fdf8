package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// HubHistory bounds the per-project event history kept for stream replay.
	HubHistory int
}
