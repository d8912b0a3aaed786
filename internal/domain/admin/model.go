package admin

// Counts are the pending totals behind the admin navigation badges.
type Counts struct {
	SOS    int `json:"sos"`
	Orders int `json:"orders"`
}

// Gauge kinds reported to metrics.
const (
	KindSOS    = "sos"
	KindOrders = "orders"
)
