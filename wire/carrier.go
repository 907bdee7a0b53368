// Package wire provides a struct carrier for transports that serialize the
// trace state themselves.
package wire

// Carrier is a DelegatingCarrier backed by plain fields, so it can be
// marshalled with encoding/json, gob or any other serialization the
// transport already uses.
type Carrier struct {
	TraceID      uint64            `json:"traceId"`
	SpanID       uint64            `json:"spanId"`
	ParentSpanID uint64            `json:"parentSpanId,omitempty"`
	Sampled      bool              `json:"sampled"`
	BaggageItems map[string]string `json:"baggage,omitempty"`
}

// SetState set's the tracer state.
func (c *Carrier) SetState(traceID, spanID, parentSpanID uint64, sampled bool) {
	c.TraceID = traceID
	c.SpanID = spanID
	c.ParentSpanID = parentSpanID
	c.Sampled = sampled
}

// State returns the tracer state.
func (c *Carrier) State() (traceID, spanID, parentSpanID uint64, sampled bool) {
	return c.TraceID, c.SpanID, c.ParentSpanID, c.Sampled
}

// SetBaggageItem sets a baggage item.
func (c *Carrier) SetBaggageItem(key, value string) {
	if c.BaggageItems == nil {
		c.BaggageItems = map[string]string{key: value}
		return
	}

	c.BaggageItems[key] = value
}

// GetBaggage iterates over each baggage item and executes the callback with
// the key:value pair.
func (c *Carrier) GetBaggage(f func(k, v string)) {
	for k, v := range c.BaggageItems {
		f(k, v)
	}
}
