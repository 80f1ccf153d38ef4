package email

const (
	subjectIncidentOpenedFmt   = "[hotline] Incident %s opened (%s)"
	subjectIncidentResolvedFmt = "[hotline] Incident %s %s"
	subjectFollowUpSuffix      = " - follow-up required"
)
