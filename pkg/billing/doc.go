// Package billing applies Paddle webhooks to the trial lifecycle.
//
// Verified notifications are mapped to trial.Manager calls:
//
//	subscription.activated          -> Convert
//	subscription.created (active)   -> Convert
//	transaction.completed           -> Convert
//	subscription.canceled           -> Cancel
//
// The account comes from custom_data.account_id, set at checkout, and the
// plan from the first item's price id through Config.PricePlans. Convert and
// Cancel are idempotent, so replayed notifications are acknowledged without
// changing state.
package billing
