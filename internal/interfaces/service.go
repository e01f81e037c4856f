package interfaces

// Service is an inbound interface of the broker. Start must not block, Stop
// releases every connection opened by Start.
type Service interface {
	Start() error
	Stop()
}
