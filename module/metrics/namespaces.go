package metrics

// Prometheus metric namespaces
const (
	namespaceNetwork = "network"
	namespaceNode    = "membernode"
	namespaceStorage = "storage"
)

// Network subsystems represent the various layers of networking.
const (
	subsystemEngine = "engine"
)

// Node subsystems
const (
	subsystemRequester = "requester"
)

// Storage subsystems represent the various components of the storage layer.
const (
	subsystemHeaders = "headers"
)
