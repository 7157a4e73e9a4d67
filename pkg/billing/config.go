package billing

// Config holds Paddle webhook configuration. PricePlans maps Paddle price ids
// to plan names, e.g. "pri_01abc:pro,pri_01def:business".
type Config struct {
	WebhookSecret string            `env:"PADDLE_WEBHOOK_SECRET"`
	PricePlans    map[string]string `env:"PADDLE_PRICE_PLANS" envSeparator:"," envKeyValSeparator:":"`
}
