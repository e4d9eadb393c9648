package bridge

import "sync"

// MessageCapacity is the payload size of one serial message record.
// Longer reads are truncated to this many bytes and the rest is dropped.
const MessageCapacity = 128

// Message is one serial read handed from the producer to the consumer.
// It travels through the queue by pointer; whoever dequeues it owns it and
// must call Release once done.
type Message struct {
	Port int
	n    int
	data [MessageCapacity]byte
}

var messagePool = sync.Pool{
	New: func() interface{} { return new(Message) },
}

// NewMessage copies at most MessageCapacity bytes of src into a pooled record.
func NewMessage(port int, src []byte) *Message {
	m := messagePool.Get().(*Message)
	m.Port = port
	m.n = copy(m.data[:], src)
	return m
}

// Bytes ...
func (m *Message) Bytes() []byte {
	return m.data[:m.n]
}

// Len ...
func (m *Message) Len() int {
	return m.n
}

// Release returns the record to the pool. m must not be used afterwards.
func (m *Message) Release() {
	m.n = 0
	m.Port = 0
	messagePool.Put(m)
}
