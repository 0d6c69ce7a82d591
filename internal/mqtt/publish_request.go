package mqtt

import "bytes"

// publishRemainingLength computes the Remaining Length value to use in the
// Fixed Header of a PUBLISH packet carrying the given topic/payload/qos.
func publishRemainingLength(topic string, payload []byte, qos QoS) int {
	result := len(topic) + 2 // 2 bytes string length prefix
	result += len(payload)   // payload has no length prefix of its own
	if qos != AtMostOnce {
		result += 2 // packet identifier
	}
	return result
}

func publishFixedHeaderBits(qos QoS, dup, retain bool) byte {
	result := byte(PublishType << 4)
	switch qos {
	case AtLeastOnce:
		result |= QoSOne
	case ExactlyOnce:
		result |= QoSTwo
	}
	if retain {
		result |= RetainBit
	}
	if dup {
		result |= DupBit
	}
	return result
}

// makePublishMessage encodes a PUBLISH packet. id is ignored for AtMostOnce.
func makePublishMessage(topic string, payload []byte, qos QoS, id PacketID, dup, retain bool) *GenericMessage {
	var data bytes.Buffer
	data.Grow(publishRemainingLength(topic, payload, qos))

	EncodeStringTo(topic, &data)
	if qos != AtMostOnce {
		Encode16BitIntTo(int(id), &data)
	}
	data.Write(payload)

	return &GenericMessage{fixedHeader: publishFixedHeaderBits(qos, dup, retain), body: data.Bytes()}
}

// makeAckMessage encodes a PUBACK/PUBREC/PUBREL/PUBCOMP packet: a fixed
// header of the given type plus a 2 byte packet identifier body. PUBREL
// additionally carries the reserved 0b0010 fixed header flags.
func makeAckMessage(packetType byte, id PacketID) *GenericMessage {
	var data bytes.Buffer
	Encode16BitIntTo(int(id), &data)
	header := packetType << 4
	if packetType == PubRelType {
		header |= PubRelReserved
	}
	return &GenericMessage{fixedHeader: header, body: data.Bytes()}
}
