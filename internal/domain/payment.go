package domain

type PaymentSessionStatus string

const (
	PaymentSessionPending      PaymentSessionStatus = "pending"
	PaymentSessionAuthorized   PaymentSessionStatus = "authorized"
	PaymentSessionRequiresMore PaymentSessionStatus = "requires_more"
	PaymentSessionError        PaymentSessionStatus = "error"
	PaymentSessionCanceled     PaymentSessionStatus = "canceled"
)

// NeedsReselection reports whether the user has to pick a provider again.
func (s PaymentSessionStatus) NeedsReselection() bool {
	return s == PaymentSessionError || s == PaymentSessionCanceled
}

func (s PaymentSessionStatus) String() string {
	return string(s)
}

type PaymentSession struct {
	ID         string               `json:"id"`
	ProviderID string               `json:"provider_id"`
	Status     PaymentSessionStatus `json:"status"`
	Amount     int64                `json:"amount"`
	Data       map[string]any       `json:"data,omitempty"`
}

// HasPayload reports whether the processor has populated the session data.
func (s *PaymentSession) HasPayload() bool {
	return s != nil && len(s.Data) > 0
}

// ClientSecret returns the processor secret used by the embedded payment form, if any.
func (s *PaymentSession) ClientSecret() string {
	if s == nil {
		return ""
	}
	if v, ok := s.Data["client_secret"].(string); ok {
		return v
	}
	return ""
}

type PaymentCollection struct {
	ID              string           `json:"id"`
	Amount          int64            `json:"amount"`
	Status          string           `json:"status,omitempty"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
}

type PaymentProvider struct {
	ID string `json:"id"`
}

// ActiveSession returns the latest session for the provider. Later sessions
// supersede earlier ones for the same provider.
func (c *Cart) ActiveSession(providerID string) *PaymentSession {
	if c == nil || c.PaymentCollection == nil {
		return nil
	}
	sessions := c.PaymentCollection.PaymentSessions
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].ProviderID == providerID {
			s := sessions[i]
			return &s
		}
	}
	return nil
}

// SelectedSession returns the session of the provider the shopper chose
// last. Sessions are appended as they are created, so switching provider
// supersedes whatever an earlier provider authorized.
func (c *Cart) SelectedSession() *PaymentSession {
	if c == nil || c.PaymentCollection == nil || len(c.PaymentCollection.PaymentSessions) == 0 {
		return nil
	}
	sessions := c.PaymentCollection.PaymentSessions
	s := sessions[len(sessions)-1]
	return &s
}
