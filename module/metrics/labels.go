package metrics

const (
	EngineLabel   = "engine"
	LabelMessage  = "message"
	LabelKind     = "kind"
	LabelReason   = "reason"
	LabelResult   = "result"
	LabelResource = "resource"
)

const (
	EngineRequester = "requester"
	EngineSimPeer   = "sim_peer"
)

const (
	MessageInventory           = "inventory"
	MessageHeaders             = "headers"
	MessageGetData             = "getdata"
	MessageNotFound            = "notfound"
	MessageReject              = "reject"
	MessageBlockResponse       = "block"
	MessageTransactionResponse = "tx"
)

const (
	ReasonDownloadTimeout = "download_timeout"
	ReasonSlowResponse    = "slow_response"
	ReasonRequestDOS      = "request_dos"
)
