package api

// SubscribeRequest is the body of POST /api/subscribe.
type SubscribeRequest struct {
	URL string `json:"url"`
}

// SubscribeResponse reveals the subscriber id and its freshly issued (or
// rotated) signing secret. This is the only place the secret is returned.
type SubscribeResponse struct {
	SubID  int64  `json:"sub_id"`
	Secret string `json:"secret"`
}

// UnsubscribeRequest is the body of POST /api/unsubscribe.
type UnsubscribeRequest struct {
	SubID int64 `json:"sub_id"`
}

// PublishRequest is the body of POST /api/provide_data.
type PublishRequest struct {
	Message string `json:"message"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	TxID int64 `json:"tx_id"`
}

// AskResponse carries the resolved message body.
type AskResponse struct {
	Message string `json:"message"`
}
