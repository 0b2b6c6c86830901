package notify

import "fmt"

// Summary renders a one-paragraph plain-text summary of a run report,
// shared by the Discord notifier and log output.
func Summary(report RunReport) string {
	switch report.Kind {
	case "recluster":
		return fmt.Sprintf("Recluster of %s (%s): %d clusters, %d issues mapped",
			report.Repo, report.Product, report.ClustersCreated, report.IssuesMapped)
	default:
		s := fmt.Sprintf("Sync of %s (%s): %d issues processed, %d embedded, %d reused",
			report.Repo, report.Mode, report.Processed, report.Embedded, report.Reused)
		if report.EmbedFailed > 0 {
			s += fmt.Sprintf(", %d embedding failures", report.EmbedFailed)
		}
		return s
	}
}

// Title renders the report's headline.
func Title(report RunReport) string {
	if report.Kind == "recluster" {
		return "Recluster Complete"
	}
	return "Issue Sync Complete"
}
