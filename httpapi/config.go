package httpapi

// Config defines HTTP control-plane settings.
type Config struct {
	Addr string
}
