package ws

import "github.com/segmentio/encoding/json"

type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // topic list
}

type ServerMsg struct {
	Type  string          `json:"type"`  // "status"
	Topic string          `json:"topic"` // e.g. export:status:BTC-USDT
	Data  json.RawMessage `json:"data"`
}
