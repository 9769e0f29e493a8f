package taskname

const (
	// Campaign passes
	CampaignReminder      = "campaign:reminder"
	CampaignWeeklySummary = "campaign:weekly_summary"
	CampaignAdminDigest   = "campaign:admin_digest"
)
