package store

// WebhookDelivery is one queued completion notification.
type WebhookDelivery struct {
	ID        string
	TenantID  string
	RunID     string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Status    string
	Attempts  int
}
