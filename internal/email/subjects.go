package email

const (
	subjectReportFmt = "Your report is ready: %s"
)
