package frame

// Shutdown announces a graceful close. The sender writes nothing after it.
type Shutdown struct{}

func (msg Shutdown) Tag() byte { return TagShutdown }

func (msg Shutdown) Cost() int { return flatCost() }

func (msg Shutdown) String() string {
	return "{Shutdown}"
}

func (msg Shutdown) Bytes() []byte {
	return []byte{TagShutdown}
}
