package adjudicator

import "github.com/xraph/adjudicator/id"

// ID is the primary identifier type for all adjudicator entities.
type ID = id.ID

// ParseClaimID parses a clm_ TypeID.
var ParseClaimID = id.ParseClaimID
