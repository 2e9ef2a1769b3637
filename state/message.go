package state

import "fmt"

type DataMessage struct {
	Id          string
	Source      NodeId
	Destination NodeId
	Payload     []byte
	TTL         int // remaining hops
	Priority    int // higher is sent first
}

func (m *DataMessage) String() string {
	return fmt.Sprintf("(id: %s, %s -> %s, ttl: %d, prio: %d)", m.Id, m.Source, m.Destination, m.TTL, m.Priority)
}

// Packet is what travels between nodes. Exactly one of Frame and Data is set.
type Packet struct {
	From  NodeId
	Frame []byte // encoded RoutingUpdate
	Data  *DataMessage
}

// TxStats counts the data messages a satellite forwarded and received.
type TxStats struct {
	Sent     uint64 // handed to the link towards a next hop
	Accepted uint64 // of Sent, taken into the next hop's inbox
	Received uint64 // arrived from a neighbour
}

// SuccessRate is the share of sent messages the next hop accepted. It is 1
// until something was sent.
func (s TxStats) SuccessRate() float64 {
	if s.Sent == 0 {
		return 1
	}
	return float64(s.Accepted) / float64(s.Sent)
}

func (s TxStats) String() string {
	return fmt.Sprintf("sent %d, accepted %d, received %d, success %.2f", s.Sent, s.Accepted, s.Received, s.SuccessRate())
}
