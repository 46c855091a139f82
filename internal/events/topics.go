package events

// Topic constants for domain events emitted by the platform.
const (
	TopicProposalGenerated = "proposal.generated"
	TopicProposalSent      = "proposal.sent"
	TopicProposalAccepted  = "proposal.accepted"
	TopicDepositPaid       = "deposit.paid"
	TopicPaymentFailed     = "payment.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicProposalGenerated,
		TopicProposalSent,
		TopicProposalAccepted,
		TopicDepositPaid,
		TopicPaymentFailed,
	}
}
