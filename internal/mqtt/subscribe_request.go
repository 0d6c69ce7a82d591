package mqtt

import "bytes"

// subscribeFilter pairs a topic filter with the QoS requested for it.
type subscribeFilter struct {
	TopicFilter string
	QoS         QoS
}

// makeSubscribeMessage encodes a SUBSCRIBE packet for the given packet
// identifier and filter list.
func makeSubscribeMessage(id PacketID, filters []subscribeFilter) *GenericMessage {
	var data bytes.Buffer
	Encode16BitIntTo(int(id), &data)
	for _, f := range filters {
		EncodeStringTo(f.TopicFilter, &data)
		data.WriteByte(byte(f.QoS))
	}
	return &GenericMessage{fixedHeader: SubscribeType<<4 | PubRelReserved, body: data.Bytes()}
}

// makeUnsubscribeMessage encodes an UNSUBSCRIBE packet for the given packet
// identifier and topic filters.
func makeUnsubscribeMessage(id PacketID, topicFilters []string) *GenericMessage {
	var data bytes.Buffer
	Encode16BitIntTo(int(id), &data)
	for _, f := range topicFilters {
		EncodeStringTo(f, &data)
	}
	return &GenericMessage{fixedHeader: UnsubscribeType<<4 | PubRelReserved, body: data.Bytes()}
}
