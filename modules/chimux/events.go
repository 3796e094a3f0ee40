package chimux

// Event types emitted by the router.
const (
	EventTypeRouterCreated    = "com.modinject.chimux.router.created"
	EventTypeRouteRegistered  = "com.modinject.chimux.route.registered"
	EventTypeRequestReceived  = "com.modinject.chimux.request.received"
	EventTypeRequestProcessed = "com.modinject.chimux.request.processed"
	EventTypeRequestFailed    = "com.modinject.chimux.request.failed"
)

const eventSource = "modinject.chimux"
