package response

import (
	"context"
	"fmt"

	"aegis/models"
)

// Template drafts fixed texts. It never fails and is the fallback for every
// other generator.
type Template struct{}

func (Template) Name() string { return "template" }

func (Template) Generate(_ context.Context, b Brief, measures []models.MeasureType) (map[models.MeasureType]string, error) {
	out := make(map[models.MeasureType]string, len(measures))
	for _, mt := range measures {
		out[mt] = templateText(mt, b)
	}
	return out, nil
}

func templateText(mt models.MeasureType, b Brief) string {
	switch mt {
	case models.MeasureCeaseDesist:
		return fmt.Sprintf("The claim %q about %s is false and has caused material market harm. Retract it immediately. %s reserves all legal rights.",
			b.Headline, b.Company, b.Company)
	case models.MeasureLegalNotice:
		return fmt.Sprintf("LEGAL NOTICE: %s has identified the publication titled %q as false and defamatory. "+
			"You are required to retract it within 24 hours and preserve all records relating to its origin and distribution. "+
			"%s will pursue all remedies available under law. Reference: %s.",
			b.Company, b.Headline, b.Company, b.EventID)
	case models.MeasureCEOAlert:
		return fmt.Sprintf("URGENT: False story on %s is live. Projected drop %.1f%%. Panic %d/100. IR and legal engaged.",
			b.Company, b.DropPercent, b.PanicScore)
	case models.MeasureOfficialDenial:
		return fmt.Sprintf("%s categorically denies the report %q. The claim is false and without basis. "+
			"Operations continue as normal and the company will keep investors informed through official channels.",
			b.Company, b.Headline)
	case models.MeasurePRTweet:
		return fmt.Sprintf("%s is aware of a false report circulating about the company. It is untrue. Please rely only on official disclosures.",
			b.Company)
	case models.MeasureInternalMemo:
		return fmt.Sprintf("Internal memo: a report titled %q is circulating about %s and is being treated as misinformation (confidence %d/100). "+
			"Do not comment externally. Route all media and investor queries to Investor Relations.",
			b.Headline, b.Company, b.Confidence)
	}
	return fmt.Sprintf("Deploy %s for event %s", mt, b.EventID)
}
