package vpn

import "packwire/pkg/model"

// AggregateTraffic sums per-peer counters into fleet totals. int64 keeps the
// sum exact well past 2^53, where a float accumulator would start dropping
// bytes. An empty fleet sums to zero.
func AggregateTraffic(records []model.PeerRecord) (sent, received int64) {
	for _, r := range records {
		sent += r.BytesSent
		received += r.BytesReceived
	}
	return sent, received
}
