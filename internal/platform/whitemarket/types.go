package whitemarket

import (
	"encoding/json"

	"github.com/arbalest/skinsniper/internal/domain"
)

// Raw payload types published on the market_products_updates channel.
const (
	payloadRemoved = "market_product_removed"
	payloadEdited  = "market_product_edited"
	payloadCreated = "market_product_new"
)

// productPayload is the inner message shape shared by the push channel and
// the stream fallback (after envelope unwrap).
type productPayload struct {
	Type    string `json:"type"`
	Content struct {
		ID       string  `json:"id"`
		NameHash string  `json:"name_hash"`
		Price    float64 `json:"price"`
	} `json:"content"`
}

// streamEnvelope is the wrapper the stream fallback delivers; the inner item
// payload is the JSON string at pub.data.message.
type streamEnvelope struct {
	Pub struct {
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"pub"`
}

// pushFrame is one server frame on the websocket channel. Publications carry
// the inner payload at push.pub.data.message; frames without a publication
// (connect replies, pings) have an empty message.
type pushFrame struct {
	ID   int `json:"id,omitempty"`
	Push struct {
		Channel string `json:"channel"`
		Pub     struct {
			Data struct {
				Message string `json:"message"`
			} `json:"data"`
		} `json:"pub"`
	} `json:"push"`
}

// UnwrapStreamEnvelope extracts the inner item payload from a stream fallback
// message. It returns false for frames that carry no publication (keepalives,
// subscription acks), which are not errors.
func UnwrapStreamEnvelope(raw []byte) ([]byte, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	if env.Pub.Data.Message == "" {
		return nil, false
	}
	return []byte(env.Pub.Data.Message), true
}

// Normalize maps a raw item payload onto the single event type the decision
// engine consumes. Unusable payloads (unparseable, no listing id, or a price
// of zero or less on a non-removal) yield no event.
func Normalize(raw []byte) (domain.MarketEvent, bool) {
	var p productPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.MarketEvent{}, false
	}
	if p.Content.ID == "" {
		return domain.MarketEvent{}, false
	}

	switch p.Type {
	case payloadRemoved:
		return domain.MarketEvent{
			Kind:      domain.EventRemoved,
			ListingID: p.Content.ID,
			Source:    domain.SourceLive,
		}, true
	case payloadEdited, payloadCreated:
		if p.Content.Price <= 0 {
			return domain.MarketEvent{}, false
		}
		kind := domain.EventUpdated
		if p.Type == payloadCreated {
			kind = domain.EventCreated
		}
		// NameHash may be empty on edits; the engine resolves it from the
		// freshness cache and drops the event when it cannot.
		return domain.MarketEvent{
			Kind:      kind,
			ListingID: p.Content.ID,
			Name:      p.Content.NameHash,
			Price:     p.Content.Price,
			Source:    domain.SourceLive,
		}, true
	default:
		return domain.MarketEvent{}, false
	}
}
